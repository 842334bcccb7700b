package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "MonetizationResearchBot/1.0 (contact: your_email@example.com)"

	defaultRetryMax = 2
)

// Transport 把“固定 UA + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// provider 只负责“拼请求 + 解码响应”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	UserAgent string

	// RetryMax 表示传输层最大重试次数（不含首次尝试）。
	// 评测分页请求设为 0：重试与退避由 harvest 统一负责。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && (req.Body == nil || req.Body == http.NoBody)
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" {
			ua := strings.TrimSpace(t.UserAgent)
			if ua == "" {
				ua = DefaultUserAgent
			}
			r.Header.Set("User-Agent", ua)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// Options 是 client 构造参数；零值即默认策略。
type Options struct {
	UserAgent string
	Timeout   time.Duration
	ProxyURL  string
}

// NewAPIClient 构造评测分页接口用的 HTTP client：传输层不重试。
func NewAPIClient(opts Options) (*http.Client, error) {
	return newClient(opts, 0)
}

// NewPageClient 构造商店页面抓取用的 HTTP client：带有界传输层重试。
func NewPageClient(opts Options) (*http.Client, error) {
	return newClient(opts, defaultRetryMax)
}

// NewResty 把 hc 包装为 resty client，baseURL 为空时不设置。
func NewResty(hc *http.Client, baseURL string) *resty.Client {
	c := resty.NewWithClient(hc)
	c.SetRetryCount(0)
	if s := strings.TrimRight(strings.TrimSpace(baseURL), "/"); s != "" {
		c.SetBaseURL(s)
	}
	return c
}

func newClient(opts Options, retryMax int) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// 等待响应头的上限与整体超时一致。
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   8,
	}

	disableKeepAlives := false
	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy_url 必须是完整 URL（例如 http://127.0.0.1:8080）")
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	return &http.Client{
		Transport: &Transport{
			Base:              base,
			UserAgent:         opts.UserAgent,
			RetryMax:          retryMax,
			DisableKeepAlives: disableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}
