package archive

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/SRMC/internal/infra/fsx"
)

// Store 把原始评测分页落盘到 <root>/<run_id>/<appid>/page-NNNN.json。
//
// 约束：
// - 只写不读：归档是审计留痕，不作为断点续传状态
// - 不覆盖：同名文件已存在即报错（同一 run_id 不应写两次同一页）
type Store struct {
	Root  string
	RunID string
}

var runIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func New(root, runID string) (Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Store{}, fmt.Errorf("archive 目录不能为空")
	}
	runID = strings.TrimSpace(runID)
	// 最小约束：避免路径穿越。
	if !runIDRE.MatchString(runID) {
		return Store{}, fmt.Errorf("非法 run_id：%q", runID)
	}
	return Store{Root: filepath.Clean(root), RunID: runID}, nil
}

// Dir 返回本次运行的归档目录。
func (s Store) Dir() string { return filepath.Join(s.Root, s.RunID) }

// PagePath 返回第 page 页（从 1 开始）的归档路径。
func (s Store) PagePath(appID, page int) (string, error) {
	if appID <= 0 {
		return "", fmt.Errorf("appid 必须为正整数，实际是 %d", appID)
	}
	if page <= 0 {
		return "", fmt.Errorf("page 必须从 1 开始，实际是 %d", page)
	}
	return filepath.Join(s.Dir(), fmt.Sprint(appID), pageName(page)), nil
}

// SavePage 原子写入一页原始响应体。
func (s Store) SavePage(appID, page int, body []byte) error {
	path, err := s.PagePath(appID, page)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicNoOverwrite(filepath.Dir(path), filepath.Base(path), body)
}

func pageName(page int) string { return fmt.Sprintf("page-%04d.json", page) }
