package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/SRMC/internal/app/run"
	"github.com/John-Robertt/SRMC/internal/config"
	"github.com/John-Robertt/SRMC/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 把 run 层事件渲染为终端进度。
//
// quiet 模式（非交互终端）只输出重试与每个 source 的结果行；
// 交互模式额外输出生效配置、逐页进度、落盘路径，并在长时间无输出时打印 keepalive。
type progressUI struct {
	w     io.Writer
	quiet bool

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	perGame int
	total   int
	done    int
	fail    int
	rows    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer, quiet bool) *progressUI {
	return &progressUI{
		w:                  w,
		quiet:              quiet,
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, runID string) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = now
	p.lastPrinted = now
	p.perGame = eff.PerGame
	p.total = len(eff.Sources)
	if p.quiet {
		return
	}

	fmt.Fprintf(p.w, "[%s] srmc run %s\n", now.Format("15:04:05"), runID)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  sources: %d\n", len(eff.Sources))
	fmt.Fprintf(p.w, "  per_game: %d\n", eff.PerGame)
	fmt.Fprintf(p.w, "  language: %s purchase_type: %s filter_type: %s\n", eff.Language, eff.PurchaseType, eff.FilterType)
	fmt.Fprintf(p.w, "  sleep: %s concurrency: %d max_retries: %d timeout: %s\n",
		eff.Sleep, eff.Concurrency, eff.MaxRetries, eff.Timeout,
	)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if strings.TrimSpace(eff.BaseURL) != "" {
		fmt.Fprintf(p.w, "  base_url: %s\n", truncate(eff.BaseURL, 120))
	}

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  csv: %s\n", eff.OutPath)
	for _, o := range []struct{ name, path string }{
		{"metadata", eff.MetadataPath},
		{"sqlite", eff.SQLitePath},
		{"archive", eff.ArchiveDir},
		{"metrics", eff.MetricsOut},
	} {
		if o.path != "" {
			fmt.Fprintf(p.w, "  %s: %s\n", o.name, o.path)
		}
	}
	fmt.Fprintln(p.w)

	if p.total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnSourceStart(idx, total int, src domain.Source) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "=== %s === [%d/%d]\n", src, idx+1, total)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPage(src domain.Source, page, items, collected int) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "  %d page %d: +%d (%d/%d)\n", src.AppID, page, items, collected, p.perGame)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnRetry(src domain.Source, attempt int, wait time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "  %s 第 %d 次重试（%s 后）：%s\n",
		src, attempt, formatShortDuration(wait), truncate(errString(err), 160),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnSourceDone(_, total int, res domain.AppResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	p.total = total
	p.rows += res.RowsCollected

	src := domain.Source{AppID: res.AppID, Name: res.Name}
	switch res.StopReason {
	case domain.StopFailed, domain.StopCanceled:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s rows=%d pages=%d: %s (%s)\n",
			p.done, total, src, res.ErrorCode, res.RowsCollected, res.Pages,
			truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s OK rows=%d pages=%d retries=%d stop=%s (%s)\n",
			p.done, total, src, res.RowsCollected, res.Pages, res.Retries, res.StopReason, formatShortDuration(dur),
		)
	}
	p.lastPrinted = time.Now()

	// 最后一个 source 完成：停止 ticker，避免在写出阶段又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) OnWrite(kind, path string, rows int) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "写出 %s: %s (%d rows)\n", kind, path, rows)
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive；可重复调用。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	stop := make(chan struct{})
	p.stopCh = stop
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: done=%d/%d fail=%d rows=%d elapsed=%s\n",
						p.done, p.total, p.fail, p.rows, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "env"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
