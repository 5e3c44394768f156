package utils

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// 本机常见的代理端口
var commonSysProxies = []string{
	"http://127.0.0.1:7890",
	"http://127.0.0.1:7891",
	"http://127.0.0.1:1080",
	"http://127.0.0.1:8080",
	"http://127.0.0.1:10808",
	"http://127.0.0.1:10809",
}

// ghProxyProbe 用于检测 github 代理的目标文件
const ghProxyProbe = "https://raw.githubusercontent.com/github/gitignore/main/Go.gitignore"

// DetectSysProxy 返回可用的系统代理地址，优先使用配置值，不可用时并发探测常见端口
// 没有可用代理时返回空字符串
func DetectSysProxy(ctx context.Context, configured string) string {
	if configured != "" && sysProxyAvailable(ctx, configured) {
		slog.Debug("系统代理", "proxy", configured)
		return configured
	}

	found := firstAvailable(ctx, commonSysProxies, func(ctx context.Context, p string) bool {
		return sysProxyAvailable(ctx, p)
	})
	if found == "" {
		slog.Debug("未找到可用代理，将不设置代理")
		return ""
	}
	slog.Debug("系统代理", "proxy", found)
	return found
}

// DetectGhProxy 返回可用且最快的 github 代理前缀，格式为 https://host/
func DetectGhProxy(ctx context.Context, single string, group []string) string {
	if single == "" && len(group) == 0 {
		slog.Debug("未配置 githubproxy，将不使用 githubproxy")
		return ""
	}

	if single != "" {
		if p := NormalizeGhProxy(single); ghProxyAvailable(ctx, p) {
			slog.Debug("GitHub代理", "proxy", p)
			return p
		}
	}

	type result struct {
		proxy string
		cost  time.Duration
	}
	results := make(chan result, len(group))
	var wg sync.WaitGroup
	for _, p := range group {
		wg.Go(func() {
			p = NormalizeGhProxy(p)
			start := time.Now()
			if ghProxyAvailable(ctx, p) {
				results <- result{proxy: p, cost: time.Since(start)}
			}
		})
	}
	wg.Wait()
	close(results)

	best := result{cost: time.Hour}
	for r := range results {
		if r.cost < best.cost {
			best = r
		}
	}
	if best.proxy == "" {
		slog.Debug("未找到可用的 GitHubProxy，将不使用 GitHubProxy")
		return ""
	}
	slog.Debug("最佳GitHub代理", "proxy", best.proxy, "耗时", best.cost)
	return best.proxy
}

// NormalizeGhProxy 补全协议头和结尾的斜杠
func NormalizeGhProxy(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "http://") && !strings.HasPrefix(p, "https://") {
		p = "https://" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func ghProxyAvailable(ctx context.Context, prefix string) bool {
	// 直连测试，不走系统代理
	client := &http.Client{Timeout: 10 * time.Second, Transport: &http.Transport{Proxy: nil}}
	return probe(ctx, client, prefix+ghProxyProbe, http.StatusOK)
}

// sysProxyAvailable 要求 Google 204 和 GitHub Raw 两个目标都成功
func sysProxyAvailable(ctx context.Context, proxy string) bool {
	proxyURL, err := url.Parse(proxy)
	if err != nil || proxyURL.Host == "" {
		return false
	}
	client := &http.Client{
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		Timeout:   3 * time.Second,
	}

	var wg sync.WaitGroup
	var google, github bool
	wg.Go(func() { google = probe(ctx, client, "https://www.google.com/generate_204", http.StatusNoContent) })
	wg.Go(func() { github = probe(ctx, client, ghProxyProbe, http.StatusOK) })
	wg.Wait()
	return google && github
}

func probe(ctx context.Context, client *http.Client, target string, expect int) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != expect {
		return false
	}
	// 读完响应体，确保下载完成
	_, err = io.Copy(io.Discard, resp.Body)
	return err == nil
}

// firstAvailable 并发检测，返回第一个通过检测的候选
func firstAvailable(ctx context.Context, candidates []string, ok func(context.Context, string) bool) string {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	found := make(chan string, 1)
	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Go(func() {
			if ok(ctx, c) {
				select {
				case found <- c:
					cancel()
				default:
				}
			}
		})
	}
	go func() {
		wg.Wait()
		close(found)
	}()

	p, _ := <-found
	return p
}
