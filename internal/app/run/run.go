package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/SRMC/internal/config"
	"github.com/John-Robertt/SRMC/internal/domain"
	"github.com/John-Robertt/SRMC/internal/harvest"
	"github.com/John-Robertt/SRMC/internal/infra/archive"
	"github.com/John-Robertt/SRMC/internal/infra/httpx"
	"github.com/John-Robertt/SRMC/internal/infra/metrics"
	"github.com/John-Robertt/SRMC/internal/normalize"
	"github.com/John-Robertt/SRMC/internal/provider"
	"github.com/John-Robertt/SRMC/internal/provider/steam"
	"github.com/John-Robertt/SRMC/internal/provider/steamstore"
	"github.com/John-Robertt/SRMC/internal/sink"
)

// 测试可替换，避免真实等待。
var (
	minCourtesyPause = time.Second
	retryBackoff     = harvest.DefaultBackoff
	retryMaxBackoff  = harvest.DefaultMaxBackoff
)

// Execute 执行一次完整采集并写出全部输出，返回 RunMeta。
//
// 单个 source 失败（重试耗尽/取消）只记录在 RunMeta.Apps 中，已取到的行照常保留；
// 返回的 error 只表示致命错误（客户端构造失败、输出写入失败）。
func Execute(ctx context.Context, eff config.EffectiveConfig) (domain.RunMeta, error) {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) (domain.RunMeta, error) {
	if obs == nil {
		obs = nopObserver{}
	}

	runID := uuid.NewString()
	obs.OnStart(eff, runID)

	meta := domain.RunMeta{
		RunID:        runID,
		Platform:     domain.Platform,
		Language:     eff.Language,
		PurchaseType: eff.PurchaseType,
		FilterType:   eff.FilterType,
		PerGameMax:   eff.PerGame,
		Concurrency:  eff.Concurrency,
		Notes:        eff.Notes,
		Apps:         make([]domain.AppResult, 0, len(eff.Sources)),
	}

	c, err := newCollector(eff, runID, obs)
	if err != nil {
		meta.GeneratedAtUTC = time.Now().UTC()
		return meta, &Error{Code: domain.ErrCodeConfigInvalid, Err: err}
	}

	results := c.collectAll(ctx)

	rows := make([]domain.Record, 0, len(results)*64)
	for _, r := range results {
		rows = append(rows, r.rows...)
		meta.Apps = append(meta.Apps, r.app)
		c.metrics.SetRows(r.app.AppID, r.app.RowsCollected, r.app.StopReason)
	}
	meta.GeneratedAtUTC = time.Now().UTC()
	meta.Finalize()

	if err := writeOutputs(context.WithoutCancel(ctx), eff, meta, rows, c.metrics, obs); err != nil {
		return meta, err
	}
	return meta, nil
}

// Error 是运行期的致命错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s：%q：%v", e.Code, e.Path, e.Err)
	}
	return fmt.Sprintf("%s：%v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type sourceResult struct {
	app  domain.AppResult
	rows []domain.Record
}

type collector struct {
	eff     config.EffectiveConfig
	obs     Observer
	fetcher harvest.Fetcher
	names   provider.NameResolver
	metrics *metrics.Metrics
}

func newCollector(eff config.EffectiveConfig, runID string, obs Observer) (*collector, error) {
	opts := httpx.Options{UserAgent: eff.UserAgent, Timeout: eff.Timeout, ProxyURL: eff.ProxyURL}

	apiClient, err := httpx.NewAPIClient(opts)
	if err != nil {
		return nil, fmt.Errorf("proxy_url 无效：%w", err)
	}
	pages, err := steam.New(httpx.NewResty(apiClient, ""), eff.BaseURL, steam.Query{
		Language:     eff.Language,
		PurchaseType: eff.PurchaseType,
		FilterType:   eff.FilterType,
		PageSize:     steam.DefaultPageSize,
	})
	if err != nil {
		return nil, err
	}

	c := &collector{
		eff: eff,
		obs: obs,
		fetcher: harvest.Fetcher{
			Pages:      pages,
			Limiter:    harvest.NewLimiter(eff.Sleep),
			MaxRetries: eff.MaxRetries,
			Backoff:    retryBackoff,
			MaxBackoff: retryMaxBackoff,
		},
	}

	if needNames(eff.Sources) {
		pageClient, err := httpx.NewPageClient(opts)
		if err != nil {
			return nil, fmt.Errorf("proxy_url 无效：%w", err)
		}
		c.names = steamstore.Resolver{HTTP: pageClient, BaseURL: eff.BaseURL}
	}

	if eff.ArchiveDir != "" {
		store, err := archive.New(eff.ArchiveDir, runID)
		if err != nil {
			return nil, err
		}
		c.fetcher.Archive = store
	}
	if eff.MetricsOut != "" {
		c.metrics = metrics.New()
		c.fetcher.Metrics = c.metrics
	}
	return c, nil
}

func needNames(srcs []domain.Source) bool {
	for _, s := range srcs {
		if strings.TrimSpace(s.Name) == "" {
			return true
		}
	}
	return false
}

// collectAll 按 source 并发（worker pool），source 内分页串行；结果按 source 列表顺序返回。
func (c *collector) collectAll(ctx context.Context) []sourceResult {
	srcs := c.eff.Sources
	results := make([]sourceResult, len(srcs))

	workers := c.eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(srcs) {
		workers = len(srcs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = c.collectOne(ctx, idx, srcs[idx])
				if idx < len(srcs)-1 {
					_ = harvest.Sleep(ctx, courtesyPause(c.eff.Sleep))
				}
			}
		}()
	}
	for i := range srcs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func courtesyPause(sleep time.Duration) time.Duration {
	if sleep < minCourtesyPause {
		return minCourtesyPause
	}
	return sleep
}

func (c *collector) collectOne(ctx context.Context, idx int, src domain.Source) sourceResult {
	started := time.Now()
	total := len(c.eff.Sources)

	app := domain.AppResult{
		AppID:             src.AppID,
		Name:              src.Name,
		MonetizationModel: src.Model,
	}

	if ctx.Err() != nil {
		app.StopReason = domain.StopCanceled
		fillSourceError(&app, ctx.Err())
		c.obs.OnSourceDone(idx, total, app, time.Since(started))
		return sourceResult{app: app}
	}

	if strings.TrimSpace(src.Name) == "" && c.names != nil {
		// 名称解析失败不影响采集：app_name 留空。
		if name, err := c.names.ResolveName(ctx, src.AppID); err == nil {
			src.Name = name
			app.Name = name
		}
	}

	c.obs.OnSourceStart(idx, total, src)

	f := c.fetcher
	f.Hooks = harvest.Hooks{
		OnPage: func(_, page, items, collected int) {
			c.obs.OnPage(src, page, items, collected)
		},
		OnRetry: func(_, attempt int, wait time.Duration, err error) {
			c.obs.OnRetry(src, attempt, wait, err)
		},
	}

	res, err := f.Fetch(ctx, src.AppID, c.eff.PerGame)
	rows := normalize.Reviews(src, res.Reviews)

	app.RowsCollected = len(rows)
	app.Pages = res.Pages
	app.Retries = res.Retries
	app.StopReason = res.Stop
	if err != nil {
		fillSourceError(&app, err)
	}

	c.obs.OnSourceDone(idx, total, app, time.Since(started))
	return sourceResult{app: app, rows: rows}
}

func writeOutputs(ctx context.Context, eff config.EffectiveConfig, meta domain.RunMeta, rows []domain.Record, m *metrics.Metrics, obs Observer) error {
	if err := sink.WriteCSV(eff.OutPath, rows); err != nil {
		return &Error{Code: domain.ErrCodeIOFailed, Path: eff.OutPath, Err: err}
	}
	obs.OnWrite("csv", eff.OutPath, len(rows))

	if eff.MetadataPath != "" {
		if err := sink.WriteMetadata(eff.MetadataPath, meta); err != nil {
			return &Error{Code: domain.ErrCodeIOFailed, Path: eff.MetadataPath, Err: err}
		}
		obs.OnWrite("metadata", eff.MetadataPath, len(rows))
	}

	if eff.SQLitePath != "" {
		db, err := sink.OpenSQLite(ctx, eff.SQLitePath)
		if err != nil {
			return &Error{Code: domain.ErrCodeIOFailed, Path: eff.SQLitePath, Err: err}
		}
		err = db.Load(ctx, meta, rows)
		if cerr := db.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return &Error{Code: domain.ErrCodeIOFailed, Path: eff.SQLitePath, Err: err}
		}
		obs.OnWrite("sqlite", eff.SQLitePath, len(rows))
	}

	if eff.MetricsOut != "" {
		m.Finish(meta.Failed(), meta.GeneratedAtUTC)
		if err := m.WriteTextfile(eff.MetricsOut); err != nil {
			return &Error{Code: domain.ErrCodeIOFailed, Path: eff.MetricsOut, Err: err}
		}
		obs.OnWrite("metrics", eff.MetricsOut, len(rows))
	}
	return nil
}

func fillSourceError(app *domain.AppResult, err error) {
	if app.StopReason == domain.StopCanceled {
		app.ErrorCode = domain.ErrCodeCanceled
		app.ErrorMsg = "已取消：" + err.Error()
		return
	}

	var re *harvest.RetryExhaustedError
	if errors.As(err, &re) {
		app.ErrorCode = domain.ErrCodeFetchFailed
		app.ErrorMsg = fmt.Sprintf("cursor=%s 连续失败 %d 次：%s", re.Cursor, re.Attempts, humanizeFetchError(re.Err))
		return
	}

	var ae *harvest.ArchiveError
	if errors.As(err, &ae) {
		app.ErrorCode = domain.ErrCodeIOFailed
		app.ErrorMsg = err.Error()
		return
	}

	// 限速器等待超出 deadline 等非重试类错误同样发生在抓取阶段。
	app.ErrorCode = domain.ErrCodeFetchFailed
	app.ErrorMsg = humanizeFetchError(err)
}

func humanizeFetchError(err error) string {
	if err == nil {
		return "抓取失败"
	}

	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		switch {
		case hs.StatusCode == 429:
			return "Steam 返回 HTTP 429（触发限流）。建议调大 --sleep 或降低 --concurrency。"
		case hs.StatusCode == 403:
			return "Steam 返回 HTTP 403（请求被拒绝）。建议检查 user_agent/代理设置。"
		case hs.StatusCode == 404:
			return "Steam 返回 HTTP 404（appid 可能不存在）。"
		case hs.StatusCode >= 500:
			return fmt.Sprintf("Steam 返回 HTTP %d（上游暂时不可用）。稍后重试即可。", hs.StatusCode)
		default:
			if loc := strings.TrimSpace(hs.Location); loc != "" {
				return fmt.Sprintf("Steam 返回 HTTP %d（重定向）：%s", hs.StatusCode, loc)
			}
			return fmt.Sprintf("Steam 返回 HTTP %d。", hs.StatusCode)
		}
	}

	var de *provider.DecodeError
	if errors.As(err, &de) {
		return fmt.Sprintf("响应不是合法的评测 JSON（可能是维护页或被拦截）：%v", de.Err)
	}
	var rj *provider.RejectedError
	if errors.As(err, &rj) {
		return fmt.Sprintf("Steam 拒绝了请求（%s）。", rj.Reason)
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return "请求超时。建议检查网络/代理，或调大 --timeout。"
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") {
		return "连接失败（TLS 握手异常）。建议检查网络或配置 proxy_url。"
	}
	return fmt.Sprintf("抓取失败：%v", err)
}
