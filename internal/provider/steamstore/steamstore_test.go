package steamstore

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/John-Robertt/SRMC/internal/provider"
)

func TestParseName(t *testing.T) {
	cases := []struct {
		name string
		html string
		want string
	}{
		{"apphub id", `<html><head><title>x</title></head><body><div id="appHubAppName" class="apphub_AppName">  Dota   2 </div></body></html>`, "Dota 2"},
		{"apphub class", `<html><body><div class="apphub_AppName">Warframe</div></body></html>`, "Warframe"},
		{"title fallback", `<html><head><title>Path of Exile on Steam</title></head><body></body></html>`, "Path of Exile"},
		{"title with discount", `<html><head><title>Save 50% on Destiny 2: The Final Shape on Steam</title></head></html>`, "Destiny 2: The Final Shape"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseName([]byte(tc.html))
			if err != nil {
				t.Fatalf("不期望错误：%v", err)
			}
			if got != tc.want {
				t.Fatalf("期望 %q，实际 %q", tc.want, got)
			}
		})
	}
}

func TestParseName_NotFound(t *testing.T) {
	if _, err := ParseName([]byte(`<html><head><title>Welcome to Steam</title></head></html>`)); err == nil {
		t.Fatalf("首页重定向时应返回错误")
	}
	if _, err := ParseName(nil); err == nil {
		t.Fatalf("空 html 应返回错误")
	}
}

func TestResolveName_FetchesAppPage(t *testing.T) {
	var gotPath, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte(`<div id="appHubAppName">Lost Ark</div>`))
	}))
	defer srv.Close()

	name, err := Resolver{HTTP: srv.Client(), BaseURL: srv.URL + "/"}.ResolveName(context.Background(), 1599340)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if name != "Lost Ark" {
		t.Fatalf("名称不正确：%q", name)
	}
	if gotPath != "/app/1599340/" {
		t.Fatalf("请求路径不正确：%q", gotPath)
	}
	if gotCookie == "" {
		t.Fatalf("应携带年龄确认 cookie")
	}
}

func TestResolveName_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := Resolver{HTTP: srv.Client(), BaseURL: srv.URL}.ResolveName(context.Background(), 1)
	if provider.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("期望 404，实际 %v", err)
	}
	var pe *provider.Error
	if !errors.As(err, &pe) || pe.Stage != "fetch" {
		t.Fatalf("期望 fetch 阶段错误，实际 %v", err)
	}
}
