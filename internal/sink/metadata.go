package sink

import (
	"bytes"
	"encoding/json"

	"github.com/John-Robertt/SRMC/internal/domain"
	"github.com/John-Robertt/SRMC/internal/infra/fsx"
)

// WriteMetadata 原子写入 RunMeta（缩进 2 空格，不转义非 ASCII 与 HTML 字符）。
func WriteMetadata(path string, meta domain.RunMeta) error {
	meta.Finalize()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, buf.Bytes())
}
