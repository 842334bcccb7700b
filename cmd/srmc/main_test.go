package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// steamStub 为每个 appid 返回一页评测，随后返回空页；failAppID 始终返回 503。
func steamStub(t *testing.T, failAppID string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/appreviews/") {
			http.NotFound(w, r)
			return
		}
		appID := strings.TrimPrefix(r.URL.Path, "/appreviews/")
		if appID == failAppID {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("cursor") != "*" {
			fmt.Fprint(w, `{"success":1,"reviews":[],"cursor":"end"}`)
			return
		}
		fmt.Fprintf(w, `{"success":1,"reviews":[{"recommendationid":"%s-1","review":"nice skins"},{"recommendationid":"%s-2","review":"ok"}],"cursor":"next"}`, appID, appID)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "srmc.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
	return p
}

func TestRunCLI_Success(t *testing.T) {
	srv := steamStub(t, "")
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "sources:\n  - appid: 570\n    name: Dota 2\n")
	out := filepath.Join(dir, "all.csv")
	meta := filepath.Join(dir, "meta.json")

	var stdout, stderr bytes.Buffer
	code := runCLI(context.Background(), []string{
		"--config", cfg,
		"--base-url", srv.URL,
		"--sleep", "0",
		"--outpath", out,
		"--save-metadata-json", meta,
	}, &stdout, &stderr, nil)
	if code != 0 {
		t.Fatalf("期望退出码 0，实际 %d\nstderr=%s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Saved single CSV: "+out+" (2 rows)") {
		t.Fatalf("stdout 缺少 CSV 摘要：%q", stdout.String())
	}
	if !strings.Contains(stdout.String(), "Saved metadata JSON: "+meta) {
		t.Fatalf("stdout 缺少 metadata 摘要：%q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "Dota 2 (570) OK rows=2") {
		t.Fatalf("stderr 缺少结果行：%q", stderr.String())
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("CSV 未写出：%v", err)
	}
}

func TestRunCLI_FailedSourceExitsOne(t *testing.T) {
	srv := steamStub(t, "730")
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "sources:\n  - appid: 730\n    name: CS2\n")
	out := filepath.Join(dir, "all.csv")

	var stdout, stderr bytes.Buffer
	code := runCLI(context.Background(), []string{
		"--config", cfg, "--base-url", srv.URL, "--sleep", "0", "--max-retries", "0", "--outpath", out,
	}, &stdout, &stderr, nil)
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d\nstderr=%s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "CS2 (730) fetch_failed") {
		t.Fatalf("stderr 缺少失败原因：%q", stderr.String())
	}
	if !strings.Contains(stdout.String(), "(0 rows)") {
		t.Fatalf("失败时仍应写出 CSV：%q", stdout.String())
	}
}

func TestRunCLI_ArgumentErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--nope"}},
		{"bad int", []string{"--per-game", "many"}},
		{"positional", []string{"extra"}},
		{"invalid value", []string{"--per-game=-1"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "none.yaml")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := runCLI(context.Background(), tc.args, &stdout, &stderr, nil); code != 2 {
				t.Fatalf("期望退出码 2，实际 %d\nstderr=%s", code, stderr.String())
			}
			if stderr.Len() == 0 {
				t.Fatalf("stderr 应包含错误说明")
			}
		})
	}
}

func TestRunCLI_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runCLI(context.Background(), []string{"--help"}, &stdout, &stderr, nil); code != 0 {
		t.Fatalf("期望退出码 0，实际 %d", code)
	}
	if !strings.Contains(stdout.String(), "--per-game") {
		t.Fatalf("帮助信息缺少参数说明：%q", stdout.String())
	}
}
