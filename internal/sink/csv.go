package sink

import (
	"encoding/csv"
	"io"

	"github.com/John-Robertt/SRMC/internal/domain"
	"github.com/John-Robertt/SRMC/internal/infra/fsx"
)

// WriteCSV 把 rows 写为单个 CSV 表（UTF-8，首行为 domain.Columns）。
// 写入是原子的：失败时不会留下半个文件，也不会破坏已有文件。
func WriteCSV(path string, rows []domain.Record) error {
	return fsx.WriteFileAtomicFunc(path, func(w io.Writer) error {
		return EncodeCSV(w, rows)
	})
}

// EncodeCSV 把表头与 rows 编码到 w。
func EncodeCSV(w io.Writer, rows []domain.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Strings()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
