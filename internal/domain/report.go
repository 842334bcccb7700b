package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// 单个 source 的结束原因。
const (
	StopCap       = "cap"       // 达到 per_game 上限（已截断）
	StopExhausted = "exhausted" // 上游返回空页
	StopStalled   = "stalled"   // 游标缺失或重复出现
	StopFailed    = "failed"    // 重试耗尽或归档失败
	StopCanceled  = "canceled"  // ctx 取消
)

const (
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeCanceled      = "canceled"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeConfigInvalid = "config_invalid"
)

// RunMeta 是可选的 metadata JSON 文档（--save-metadata-json）。
type RunMeta struct {
	RunID          string    `json:"run_id"`
	GeneratedAtUTC time.Time `json:"generated_at_utc"`
	Platform       string    `json:"platform"`
	Language       string    `json:"language"`
	PurchaseType   string    `json:"purchase_type"`
	FilterType     string    `json:"filter_type"`
	PerGameMax     int       `json:"per_game_max"`
	Concurrency    int       `json:"concurrency"`

	Apps      []AppResult `json:"apps"`
	TotalRows int         `json:"total_rows"`
	Notes     string      `json:"notes"`
}

// AppResult 记录单个 source 的采集结果。
type AppResult struct {
	AppID             int    `json:"appid"`
	Name              string `json:"name"`
	MonetizationModel string `json:"monetization_model"`
	RowsCollected     int    `json:"rows_collected"`

	Pages      int    `json:"pages"`
	Retries    int    `json:"retries"`
	StopReason string `json:"stop_reason"`
	ErrorCode  string `json:"error_code,omitempty"`
	ErrorMsg   string `json:"error_msg,omitempty"`
}

// Finalize 统一时间为 UTC，并由 apps 重新计算 total_rows。
// apps 顺序即 source 列表顺序，这里不排序。
func (m *RunMeta) Finalize() {
	m.GeneratedAtUTC = m.GeneratedAtUTC.UTC()
	total := 0
	for _, a := range m.Apps {
		total += a.RowsCollected
	}
	m.TotalRows = total
}

// Failed 返回失败的 source 数。
func (m RunMeta) Failed() int {
	n := 0
	for _, a := range m.Apps {
		if a.StopReason == StopFailed || a.StopReason == StopCanceled {
			n++
		}
	}
	return n
}

// MarshalJSON 保证 apps 为空时输出 [] 而不是 null，且不转义 & < > 等 HTML 字符。
// 调用方若需要保持不转义，外层 Encoder 也必须 SetEscapeHTML(false)。
func (m RunMeta) MarshalJSON() ([]byte, error) {
	type Alias RunMeta
	a := Alias(m)
	if a.Apps == nil {
		a.Apps = []AppResult{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
