package steamstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/SRMC/internal/provider"
)

const DefaultBaseURL = "https://store.steampowered.com"

// Resolver 从商店页 https://store.steampowered.com/app/{appid}/ 读取游戏名称。
//
// 约束：
// - 只用于补全未配置 name 的 source，失败不影响评测采集
// - Parse 是纯函数（只依赖输入 html）
type Resolver struct {
	HTTP    *http.Client
	BaseURL string
}

func (r Resolver) baseURL() string {
	u := strings.TrimSpace(r.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (r Resolver) ResolveName(ctx context.Context, appID int) (string, error) {
	if r.HTTP == nil {
		return "", errors.New("http client 不能为空")
	}
	if appID <= 0 {
		return "", fmt.Errorf("appid 必须为正整数，实际是 %d", appID)
	}

	pageURL := r.baseURL() + "/app/" + strconv.Itoa(appID) + "/"
	b, err := fetchURL(ctx, r.HTTP, pageURL)
	if err != nil {
		return "", &provider.Error{Provider: "steamstore", Stage: "fetch", Err: err}
	}
	name, err := ParseName(b)
	if err != nil {
		return "", &provider.Error{Provider: "steamstore", Stage: "decode", Err: err}
	}
	return name, nil
}

// ParseName 从商店页 HTML 中读取游戏名称。
// 优先 #appHubAppName / .apphub_AppName，缺失时回退 <title>（去掉 "Save NN% on" 与 "on Steam"）。
func ParseName(html []byte) (string, error) {
	if len(html) == 0 {
		return "", errors.New("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", err
	}

	for _, sel := range []string{"#appHubAppName", ".apphub_AppName"} {
		if s := normSpace(doc.Find(sel).First().Text()); s != "" {
			return s, nil
		}
	}

	title := normSpace(doc.Find("title").First().Text())
	title = strings.TrimSuffix(title, " on Steam")
	if strings.HasPrefix(title, "Save ") {
		if i := strings.Index(title, "% on "); i > 0 {
			title = title[i+len("% on "):]
		}
	}
	title = strings.TrimSpace(title)
	if title == "" || title == "Welcome to Steam" {
		return "", errors.New("商店页中未找到游戏名称")
	}
	return title, nil
}

func fetchURL(ctx context.Context, c *http.Client, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	// 跳过年龄确认页。
	req.Header.Set("Cookie", "birthtime=0; wants_mature_content=1")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
