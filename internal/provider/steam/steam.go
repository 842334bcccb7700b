package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/John-Robertt/SRMC/internal/domain"
	"github.com/John-Robertt/SRMC/internal/provider"
)

const (
	DefaultBaseURL  = "https://store.steampowered.com"
	DefaultPageSize = 100

	name = "steam"
)

// Query 是每次分页请求都携带的固定过滤条件。
type Query struct {
	Language     string
	PurchaseType string // all | steam | non_steam_purchase
	FilterType   string // recent | updated | all
	PageSize     int
}

// Client 实现 appreviews 分页接口：
// GET {base}/appreviews/{appid}?json=1&language=..&purchase_type=..&filter=..&num_per_page=100&cursor=..
//
// 一次调用只发一次请求；重试、退避、限速都在 harvest。
type Client struct {
	HTTP  *resty.Client
	Query Query
}

// New 构造 Client；baseURL 为空时使用 DefaultBaseURL。
// rc 的 BaseURL 会被覆盖。
func New(rc *resty.Client, baseURL string, q Query) (*Client, error) {
	if rc == nil {
		return nil, errors.New("resty client 不能为空")
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	rc.SetBaseURL(base)
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	return &Client{HTTP: rc, Query: q}, nil
}

type pageBody struct {
	Success *int               `json:"success"`
	Reviews []domain.RawReview `json:"reviews"`
	Cursor  *string            `json:"cursor"`
}

func (c *Client) FetchPage(ctx context.Context, appID int, cursor string) (domain.Page, error) {
	if appID <= 0 {
		return domain.Page{}, fmt.Errorf("appid 必须为正整数，实际是 %d", appID)
	}
	if cursor == "" {
		cursor = domain.CursorStart
	}

	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetPathParam("appid", strconv.Itoa(appID)).
		SetQueryParams(c.params(cursor)).
		SetHeader("Accept", "application/json").
		Get("/appreviews/{appid}")
	if err != nil {
		return domain.Page{}, &provider.Error{Provider: name, Stage: "fetch", Err: err}
	}

	u := requestURL(resp)
	if !resp.IsSuccess() {
		return domain.Page{}, &provider.Error{Provider: name, Stage: "fetch", Err: &provider.HTTPStatusError{
			URL:        u,
			StatusCode: resp.StatusCode(),
			Location:   resp.Header().Get("Location"),
		}}
	}

	body := resp.Body()
	var pb pageBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return domain.Page{}, &provider.Error{Provider: name, Stage: "decode", Err: &provider.DecodeError{URL: u, Err: err}}
	}
	if pb.Success != nil && *pb.Success != 1 {
		return domain.Page{}, &provider.Error{Provider: name, Stage: "decode", Err: &provider.RejectedError{
			URL:    u,
			Reason: "success=" + strconv.Itoa(*pb.Success),
		}}
	}

	return domain.Page{Reviews: pb.Reviews, Cursor: pb.Cursor, Body: body}, nil
}

func (c *Client) params(cursor string) map[string]string {
	return map[string]string{
		"json":          "1",
		"language":      c.Query.Language,
		"purchase_type": c.Query.PurchaseType,
		"filter":        c.Query.FilterType,
		"num_per_page":  strconv.Itoa(c.Query.PageSize),
		"cursor":        cursor,
	}
}

func requestURL(resp *resty.Response) string {
	if resp == nil || resp.Request == nil {
		return ""
	}
	if resp.Request.RawRequest != nil && resp.Request.RawRequest.URL != nil {
		return resp.Request.RawRequest.URL.String()
	}
	return resp.Request.URL
}
