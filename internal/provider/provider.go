package provider

import (
	"context"

	"github.com/John-Robertt/SRMC/internal/domain"
)

// PageFetcher 把“上游接口变化”限制在 provider 包内部；harvest 只依赖该接口与 domain.Page。
//
// 约束：
// - FetchPage 只发一次请求：不做重试、不做限速（由 harvest 统一控制）
// - 非 2xx 返回 *HTTPStatusError；响应体无法解码返回 *DecodeError
type PageFetcher interface {
	FetchPage(ctx context.Context, appID int, cursor string) (domain.Page, error)
}

// NameResolver 为未配置展示名的 source 解析游戏名称。
type NameResolver interface {
	ResolveName(ctx context.Context, appID int) (string, error)
}
