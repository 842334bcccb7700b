package run

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/John-Robertt/SRMC/internal/domain"
	"github.com/John-Robertt/SRMC/internal/harvest"
	"github.com/John-Robertt/SRMC/internal/provider"
)

func TestFillSourceError_Classification(t *testing.T) {
	cases := []struct {
		name     string
		stop     string
		err      error
		wantCode string
		wantMsg  string
	}{
		{
			name:     "限速等待超出 deadline",
			stop:     domain.StopFailed,
			err:      errors.New("rate: Wait(n=1) would exceed context deadline"),
			wantCode: domain.ErrCodeFetchFailed,
			wantMsg:  "would exceed context deadline",
		},
		{
			name: "重试耗尽",
			stop: domain.StopFailed,
			err: &harvest.RetryExhaustedError{AppID: 1, Cursor: "*", Attempts: 3,
				Err: &provider.HTTPStatusError{StatusCode: 429}},
			wantCode: domain.ErrCodeFetchFailed,
			wantMsg:  "HTTP 429",
		},
		{
			name:     "归档写盘失败",
			stop:     domain.StopFailed,
			err:      fmt.Errorf("包装：%w", &harvest.ArchiveError{AppID: 1, Page: 2, Err: errors.New("disk full")}),
			wantCode: domain.ErrCodeIOFailed,
			wantMsg:  "disk full",
		},
		{
			name:     "取消",
			stop:     domain.StopCanceled,
			err:      errors.New("context canceled"),
			wantCode: domain.ErrCodeCanceled,
			wantMsg:  "已取消",
		},
	}
	for _, c := range cases {
		app := domain.AppResult{StopReason: c.stop}
		fillSourceError(&app, c.err)
		if app.ErrorCode != c.wantCode {
			t.Fatalf("%s: 期望 %q，实际 %q", c.name, c.wantCode, app.ErrorCode)
		}
		if !strings.Contains(app.ErrorMsg, c.wantMsg) {
			t.Fatalf("%s: 错误信息应包含 %q，实际 %q", c.name, c.wantMsg, app.ErrorMsg)
		}
	}
}
