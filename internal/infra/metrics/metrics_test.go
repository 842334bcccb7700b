package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(1, "ok", time.Second)
	m.AddRetry(1)
	m.AddPage(1, 3)
	m.SetRows(1, 3, "cap")
	m.Finish(0, time.Now())
	if err := m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("nil Metrics 写出不应报错：%v", err)
	}
	if m.Registry() != nil {
		t.Fatalf("nil Metrics 的 Registry 应为 nil")
	}
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRequest(570, "ok", 120*time.Millisecond)
	m.ObserveRequest(570, "http_429", 50*time.Millisecond)
	m.AddRetry(570)
	m.AddPage(570, 100)
	m.AddPage(570, 40)
	m.SetRows(570, 140, "exhausted")
	m.Finish(0, time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "nested", "srmc.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取 textfile 失败：%v", err)
	}
	text := string(b)
	for _, want := range []string{
		`srmc_page_requests_total{appid="570",result="ok"} 1`,
		`srmc_page_requests_total{appid="570",result="http_429"} 1`,
		`srmc_page_retries_total{appid="570"} 1`,
		`srmc_pages_total{appid="570"} 2`,
		`srmc_reviews_received_total{appid="570"} 140`,
		`srmc_rows_collected{appid="570",stop_reason="exhausted"} 140`,
		`srmc_sources_failed 0`,
		`srmc_last_run_timestamp_seconds 1.7e+09`,
		`srmc_page_request_duration_seconds_count 2`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile 缺少 %q：\n%s", want, text)
		}
	}
}
