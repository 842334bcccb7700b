package run

import (
	"time"

	"github.com/John-Robertt/SRMC/internal/config"
	"github.com/John-Robertt/SRMC/internal/domain"
)

// Observer 用于把“运行进度/单个 source 结果/输出落盘”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出。
// - Observer 的实现必须并发安全：--concurrency>1 时事件来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig, runID string)
	// OnSourceStart 在某个 source 开始分页前调用；idx 从 0 开始。
	OnSourceStart(idx, total int, src domain.Source)
	// OnPage 在每页成功解码后调用；collected 是该 source 已累计的条数（已按 cap 截断）。
	OnPage(src domain.Source, page, items, collected int)
	// OnRetry 在一次失败后、退避等待前调用。
	OnRetry(src domain.Source, attempt int, wait time.Duration, err error)
	// OnSourceDone 在某个 source 结束（任意 stop_reason）后调用。
	OnSourceDone(idx, total int, res domain.AppResult, dur time.Duration)
	// OnWrite 在某个输出落盘后调用；kind 为 csv/metadata/sqlite/metrics。
	OnWrite(kind, path string, rows int)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig, string) {}
func (nopObserver) OnSourceStart(int, int, domain.Source) {}
func (nopObserver) OnPage(domain.Source, int, int, int) {}
func (nopObserver) OnRetry(domain.Source, int, time.Duration, error) {}
func (nopObserver) OnSourceDone(int, int, domain.AppResult, time.Duration) {}
func (nopObserver) OnWrite(string, string, int) {}
