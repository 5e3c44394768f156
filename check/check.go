// Package check 通过 mihomo 检测节点是否可用
package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/protocol"
	proxyutils "github.com/sinspired/clash-butler/proxy"
)

// Result 单个节点的检测结果
type Result struct {
	Proxy protocol.Proxy
	Delay time.Duration
	// Geo 出口位置，GeoOK 为 false 时无效
	Geo   proxyutils.GeoInfo
	GeoOK bool
}

// ClientFactory 为节点创建 http 客户端，返回的 close 用于释放资源
type ClientFactory func(p protocol.Proxy, timeout time.Duration) (client *http.Client, close func(), err error)

// Locator 通过节点查询出口位置
type Locator func(ctx context.Context, client *http.Client) (proxyutils.GeoInfo, bool)

// ProxyChecker 存活检测
type ProxyChecker struct {
	TestURL    string
	Timeout    time.Duration
	Concurrent int

	// Locate 非空时对可用节点查询出口位置
	Locate Locator

	NewClient ClientFactory
}

// NewProxyChecker 根据配置创建检测器
func NewProxyChecker(cfg *config.Config) *ProxyChecker {
	return &ProxyChecker{
		TestURL:    cfg.AliveTestURL,
		Timeout:    time.Duration(max(cfg.AliveTimeout, 100)) * time.Millisecond,
		Concurrent: max(cfg.AliveConcurrent, 1),
		NewClient:  mihomoClient,
	}
}

func mihomoClient(p protocol.Proxy, timeout time.Duration) (*http.Client, func(), error) {
	pc, err := CreateClient(p, timeout)
	if err != nil {
		return nil, nil, err
	}
	return pc.Client, pc.Close, nil
}

// Run 并发检测所有节点，只返回可用节点，顺序与输入一致
// ctx 取消时返回已完成的结果和 ctx 的错误
func (pc *ProxyChecker) Run(ctx context.Context, proxies []protocol.Proxy) ([]Result, error) {
	if len(proxies) == 0 {
		return nil, nil
	}
	Current.start(len(proxies))
	defer Current.finish()

	stop := make(chan struct{})
	defer close(stop)
	go Current.report(10*time.Second, stop)

	type job struct {
		idx   int
		proxy protocol.Proxy
	}
	type indexed struct {
		idx int
		res Result
	}

	jobs := make(chan job)
	resultChan := make(chan indexed, pc.Concurrent)
	slots := make([]*Result, len(proxies))

	done := make(chan struct{})
	go func() {
		for r := range resultChan {
			slots[r.idx] = &r.res
		}
		close(done)
	}()

	var wg sync.WaitGroup
	for range min(pc.Concurrent, len(proxies)) {
		wg.Go(func() {
			for j := range jobs {
				res, ok := pc.checkOne(ctx, j.proxy)
				Current.record(ok)
				if ok {
					resultChan <- indexed{idx: j.idx, res: res}
				}
			}
		})
	}

	// 分散同一服务器的节点后再分发
	order := spreadOrder(proxies)

dispatch:
	for _, idx := range order {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- job{idx: idx, proxy: proxies[idx]}:
		}
	}
	close(jobs)
	wg.Wait()
	close(resultChan)
	<-done

	results := make([]Result, 0, len(proxies))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	slog.Info("存活检测完成", "总数", len(proxies), "可用", len(results))
	return results, ctx.Err()
}

func (pc *ProxyChecker) checkOne(ctx context.Context, p protocol.Proxy) (Result, bool) {
	if ctx.Err() != nil {
		return Result{}, false
	}
	client, closeFn, err := pc.NewClient(p, pc.Timeout)
	if err != nil {
		slog.Debug("创建节点客户端失败", "name", p.Name(), "error", err)
		return Result{}, false
	}
	defer closeFn()

	delay, err := checkAlive(ctx, client, pc.TestURL)
	if err != nil {
		slog.Debug("节点不可用", "name", p.Name(), "error", err)
		return Result{}, false
	}

	res := Result{Proxy: p, Delay: delay}
	if pc.Locate != nil {
		lctx, cancel := context.WithTimeout(ctx, 3*pc.Timeout)
		res.Geo, res.GeoOK = pc.Locate(lctx, client)
		cancel()
	}
	return res, true
}

var errUnexpectedStatus = errors.New("状态码异常")

// checkAlive 请求测试地址，返回 204 或 200 视为可用
func checkAlive(ctx context.Context, client *http.Client, testURL string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, testURL, nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: %d", errUnexpectedStatus, resp.StatusCode)
	}
	return time.Since(start), nil
}

// Proxies 取出结果中的节点
func Proxies(results []Result) []protocol.Proxy {
	out := make([]protocol.Proxy, len(results))
	for i, r := range results {
		out[i] = r.Proxy
	}
	return out
}
