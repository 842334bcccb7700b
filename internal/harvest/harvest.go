package harvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/John-Robertt/SRMC/internal/domain"
	"github.com/John-Robertt/SRMC/internal/infra/metrics"
	"github.com/John-Robertt/SRMC/internal/provider"
)

const (
	DefaultMaxRetries = 6
	DefaultBackoff    = 2500 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// Result 是单个 source 的分页结果。Reviews 保持上游返回顺序，长度 <= cap。
type Result struct {
	Reviews []domain.RawReview
	Pages   int
	Retries int
	Stop    string
}

// RetryExhaustedError 表示同一 cursor 连续失败次数超过上限。
type RetryExhaustedError struct {
	AppID    int
	Cursor   string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("app %d cursor=%q 连续失败 %d 次，放弃：%v", e.AppID, e.Cursor, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// ArchiveError 表示原始分页归档写盘失败（本地 I/O，而非上游抓取）。
type ArchiveError struct {
	AppID int
	Page  int
	Err   error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("app %d 归档第 %d 页失败：%v", e.AppID, e.Page, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// PageArchiver 接收每个成功解码的原始分页（审计用，只写不读）。
type PageArchiver interface {
	SavePage(appID, page int, body []byte) error
}

// Hooks 是分页过程中的进度回调；字段可为空。
// 并发采集时会被多个 goroutine 调用，实现必须并发安全。
type Hooks struct {
	OnPage  func(appID, page, items, total int)
	OnRetry func(appID, attempt int, wait time.Duration, err error)
}

// Fetcher 把一个 source 的 cursor 分页“排空”到 cap 为止。
//
// 状态机：
// - 请求失败（传输错误/非 2xx/无法解码）：同一 cursor 重试，指数退避，超过 MaxRetries 次放弃
// - 空页：exhausted
// - 累计 >= cap：cap（截断到恰好 cap）
// - 下一 cursor 缺失或此前已出现过：stalled
//
// 成功取到一页后，该 cursor 不会再被请求。
type Fetcher struct {
	Pages provider.PageFetcher

	// Limiter 在每次请求前等待（包括重试）；多个 worker 共享同一个实例即为全局限速。
	Limiter *rate.Limiter

	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration

	Archive PageArchiver
	Metrics *metrics.Metrics
	Hooks   Hooks

	// sleep 可在测试中替换，避免真实等待。
	sleep func(ctx context.Context, d time.Duration) error
}

// Fetch 取回 appID 的最多 limit 条评测。
//
// 出错时仍返回已经取到的部分结果：
// - 重试耗尽：*RetryExhaustedError，Stop=failed
// - ctx 取消：ctx.Err()，Stop=canceled
func (f *Fetcher) Fetch(ctx context.Context, appID, limit int) (Result, error) {
	if f.Pages == nil {
		return Result{}, errors.New("page fetcher 不能为空")
	}
	var res Result
	if limit <= 0 {
		res.Stop = domain.StopCap
		return res, nil
	}

	cursor := domain.CursorStart
	seen := map[string]struct{}{cursor: {}}
	for {
		page, err := f.fetchWithRetry(ctx, appID, cursor, &res)
		if err != nil {
			if ctx.Err() != nil {
				res.Stop = domain.StopCanceled
				return res, ctx.Err()
			}
			res.Stop = domain.StopFailed
			return res, err
		}

		res.Pages++
		if f.Archive != nil {
			if err := f.Archive.SavePage(appID, res.Pages, page.Body); err != nil {
				res.Stop = domain.StopFailed
				return res, &ArchiveError{AppID: appID, Page: res.Pages, Err: err}
			}
		}
		f.Metrics.AddPage(appID, len(page.Reviews))

		if len(page.Reviews) == 0 {
			res.Stop = domain.StopExhausted
			f.onPage(appID, res.Pages, 0, len(res.Reviews))
			return res, nil
		}

		res.Reviews = append(res.Reviews, page.Reviews...)
		if len(res.Reviews) >= limit {
			res.Reviews = res.Reviews[:limit:limit]
			res.Stop = domain.StopCap
			f.onPage(appID, res.Pages, len(page.Reviews), len(res.Reviews))
			return res, nil
		}
		f.onPage(appID, res.Pages, len(page.Reviews), len(res.Reviews))

		if page.Cursor == nil || *page.Cursor == "" {
			res.Stop = domain.StopStalled
			return res, nil
		}
		// 出现过的 cursor（包括 A->B->A 这样的环）不再请求。
		if _, ok := seen[*page.Cursor]; ok {
			res.Stop = domain.StopStalled
			return res, nil
		}
		cursor = *page.Cursor
		seen[cursor] = struct{}{}
	}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, appID int, cursor string, res *Result) (domain.Page, error) {
	maxRetries := f.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	wait := f.Backoff
	if wait <= 0 {
		wait = DefaultBackoff
	}
	maxWait := f.MaxBackoff
	if maxWait <= 0 {
		maxWait = DefaultMaxBackoff
	}
	if wait > maxWait {
		wait = maxWait
	}

	for attempt := 0; ; attempt++ {
		if f.Limiter != nil {
			if err := f.Limiter.Wait(ctx); err != nil {
				return domain.Page{}, err
			}
		} else if err := ctx.Err(); err != nil {
			return domain.Page{}, err
		}

		start := time.Now()
		page, err := f.Pages.FetchPage(ctx, appID, cursor)
		f.Metrics.ObserveRequest(appID, resultLabel(err), time.Since(start))
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return domain.Page{}, ctx.Err()
		}
		if attempt >= maxRetries {
			return domain.Page{}, &RetryExhaustedError{AppID: appID, Cursor: cursor, Attempts: attempt + 1, Err: err}
		}

		res.Retries++
		f.Metrics.AddRetry(appID)
		if f.Hooks.OnRetry != nil {
			f.Hooks.OnRetry(appID, attempt+1, wait, err)
		}
		if err := f.doSleep(ctx, wait); err != nil {
			return domain.Page{}, err
		}
		wait *= 2
		if wait > maxWait {
			wait = maxWait
		}
	}
}

func (f *Fetcher) onPage(appID, page, items, total int) {
	if f.Hooks.OnPage != nil {
		f.Hooks.OnPage(appID, page, items, total)
	}
}

func (f *Fetcher) doSleep(ctx context.Context, d time.Duration) error {
	if f.sleep != nil {
		return f.sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep 等待 d 或 ctx 结束。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := provider.StatusCode(err); code != 0 {
		return fmt.Sprintf("http_%d", code)
	}
	var de *provider.DecodeError
	if errors.As(err, &de) {
		return "decode"
	}
	var re *provider.RejectedError
	if errors.As(err, &re) {
		return "rejected"
	}
	return "transport"
}

// NewLimiter 返回“每 delay 放行一次请求”的限速器；delay<=0 表示不限速。
func NewLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}
