package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRunMeta_Finalize_TotalAndUTC(t *testing.T) {
	m := RunMeta{
		RunID:          "r1",
		GeneratedAtUTC: time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		Apps: []AppResult{
			{AppID: 730, RowsCollected: 5, StopReason: StopCap},
			{AppID: 570, RowsCollected: 0, StopReason: StopExhausted},
			{AppID: 440, RowsCollected: 3, StopReason: StopStalled},
		},
	}

	m.Finalize()

	if m.TotalRows != 8 {
		t.Fatalf("total_rows 统计不正确：%d", m.TotalRows)
	}
	// apps 顺序必须保持 source 列表顺序。
	if m.Apps[0].AppID != 730 || m.Apps[1].AppID != 570 || m.Apps[2].AppID != 440 {
		t.Fatalf("apps 顺序被改变：%+v", m.Apps)
	}

	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"generated_at_utc\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("generated_at_utc 不是 UTC RFC3339：%s", string(b))
	}
}

func TestRunMeta_MarshalJSON_EmptyApps(t *testing.T) {
	b, err := json.Marshal(RunMeta{})
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"apps\":[]")) {
		t.Fatalf("apps 为空时应输出 []：%s", string(b))
	}
}

func TestRunMeta_Failed(t *testing.T) {
	m := RunMeta{Apps: []AppResult{
		{StopReason: StopCap},
		{StopReason: StopFailed},
		{StopReason: StopCanceled},
	}}
	if got := m.Failed(); got != 2 {
		t.Fatalf("期望 2 个失败 source，实际 %d", got)
	}
}

func TestRunMeta_MarshalJSON_NoHTMLEscape(t *testing.T) {
	m := RunMeta{
		Notes: "ethical & profitable",
		Apps:  []AppResult{{AppID: 1, Name: "A <B>"}},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		t.Fatalf("编码失败：%v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"notes":"ethical & profitable"`) || !strings.Contains(out, `"name":"A <B>"`) {
		t.Fatalf("不应转义 HTML 字符：%s", out)
	}
	if strings.Contains(out, `\u0026`) || strings.Contains(out, `\u003c`) {
		t.Fatalf("出现了转义序列：%s", out)
	}
}
