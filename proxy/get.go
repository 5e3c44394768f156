// Package proxies 处理订阅获取、解析、去重及节点重命名
package proxies

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/juju/ratelimit"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/samber/lo"
	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/protocol"
	"github.com/sinspired/clash-butler/utils"
	"gopkg.in/yaml.v3"
)

var (
	// ErrIgnore 用作内部特殊标记，表示某些情况下无需记录日志的“非错误”返回
	ErrIgnore = errors.New("error-ignore")
	// ErrTooLarge 订阅内容超过 sub-max-size
	ErrTooLarge = errors.New("订阅内容超过大小限制")
	// ErrNoSources 没有配置任何订阅来源
	ErrNoSources = errors.New("未配置订阅来源")
)

// SourceKind 订阅来源类型
type SourceKind int

const (
	SourceURL SourceKind = iota
	SourcePool
	SourceFile
	SourceText
)

func (k SourceKind) String() string {
	switch k {
	case SourceURL:
		return "订阅"
	case SourcePool:
		return "节点池"
	case SourceFile:
		return "文件"
	case SourceText:
		return "文本"
	}
	return "未知"
}

// Source 单个订阅来源
type Source struct {
	Kind  SourceKind
	Value string
}

// Label 用于日志和统计，文本来源只显示摘要
func (s Source) Label() string {
	if s.Kind == SourceText {
		r := []rune(strings.TrimSpace(s.Value))
		if len(r) > 24 {
			return "text:" + string(r[:24]) + "..."
		}
		return "text:" + string(r)
	}
	return s.Value
}

// Fetcher 获取订阅内容，零值不可用，使用 NewFetcher 创建
type Fetcher struct {
	Retries       int
	RetryInterval time.Duration
	Timeout       time.Duration
	// SysProxy 非空时优先通过该代理获取
	SysProxy string
	// GhProxy github 代理前缀，为空时不使用
	GhProxy string
	// MaxSize 单个订阅的最大字节数，0 表示不限制
	MaxSize int64

	bucket *ratelimit.Bucket
	now    func() time.Time
}

// NewFetcher 根据配置创建 Fetcher，大小类配置使用 10MB、512KB 这样的写法
func NewFetcher(cfg *config.Config) (*Fetcher, error) {
	f := &Fetcher{
		Retries:       max(cfg.SubUrlsReTry, 1),
		RetryInterval: time.Duration(max(cfg.SubUrlsRetryInterval, 1)) * time.Second,
		Timeout:       time.Duration(max(cfg.SubUrlsTimeout, 1)) * time.Second,
		SysProxy:      cfg.SystemProxy,
		GhProxy:       cfg.GithubProxy,
		now:           time.Now,
	}
	if s := strings.TrimSpace(cfg.SubMaxSize); s != "" {
		n, err := units.RAMInBytes(s)
		if err != nil {
			return nil, fmt.Errorf("sub-max-size 格式错误: %w", err)
		}
		f.MaxSize = n
	}
	if s := strings.TrimSpace(cfg.SubDownloadLimit); s != "" {
		n, err := units.RAMInBytes(s)
		if err != nil {
			return nil, fmt.Errorf("sub-download-limit 格式错误: %w", err)
		}
		f.SetRateLimit(n)
	}
	return f, nil
}

// SetRateLimit 限制所有下载共享的总速率 (字节/秒)，非正数取消限制
func (f *Fetcher) SetRateLimit(bytesPerSec int64) {
	if bytesPerSec <= 0 {
		f.bucket = nil
		return
	}
	f.bucket = ratelimit.NewBucketWithRate(float64(bytesPerSec), bytesPerSec)
}

// FetchSubscription 读取一个订阅来源的原始内容
func (f *Fetcher) FetchSubscription(ctx context.Context, src Source) ([]byte, error) {
	switch src.Kind {
	case SourceText:
		return []byte(src.Value), nil
	case SourceFile:
		return f.readFile(src.Value)
	default:
		if path, ok := strings.CutPrefix(src.Value, "file://"); ok {
			return f.readFile(path)
		}
		return f.fetchURL(ctx, src.Value)
	}
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	path = strings.TrimPrefix(path, "file://")
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("读取订阅文件失败: %w", err)
	}
	if f.MaxSize > 0 && st.Size() > f.MaxSize {
		return nil, fmt.Errorf("%s (%s): %w", path, units.HumanSize(float64(st.Size())), ErrTooLarge)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取订阅文件失败: %w", err)
	}
	return data, nil
}

type tryPlan struct {
	url      string
	useProxy bool
	via      string
}

// fetchURL 按重试次数依次尝试: 系统代理或直连，然后 github 代理
// 含日期占位符的链接先试今日再试昨日，都明确失效时返回 ErrIgnore
func (f *Fetcher) fetchURL(ctx context.Context, rawURL string) ([]byte, error) {
	candidates, hasDate := f.buildCandidateURLs(rawURL)

	var lastErr error
	for i := range f.Retries {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.RetryInterval):
			}
		}

		expired := 0
		for _, cand := range candidates {
			normalized := ensureScheme(cand)
			plans := []tryPlan{{url: normalized, via: "direct"}}
			if f.SysProxy != "" && !isLocalURL(normalized) {
				plans[0] = tryPlan{url: normalized, useProxy: true, via: "sys-proxy"}
			}
			if gh := utils.WarpURL(normalized, f.GhProxy); f.GhProxy != "" && gh != normalized {
				plans = append(plans, tryPlan{url: gh, via: "ghproxy-direct"})
			}

			terminal := false
			for _, p := range plans {
				body, term, err := f.fetchOnce(ctx, p.url, p.useProxy)
				if err == nil {
					return body, nil
				}
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Debug("获取订阅失败", "url", p.url, "via", p.via, "error", err)
				lastErr = err
				if term {
					terminal = true
					break
				}
			}
			if terminal {
				if !hasDate {
					// 明确错误（如 404/401）直接终止所有重试
					return nil, lastErr
				}
				expired++
			}
		}
		if hasDate && expired == len(candidates) {
			return nil, ErrIgnore
		}
	}

	return nil, fmt.Errorf("重试%d次后失败: %w", f.Retries, lastErr)
}

// fetchOnce 执行一次请求，terminal 为 true 表示不应继续重试
func (f *Fetcher) fetchOnce(ctx context.Context, target string, useProxy bool) (body []byte, terminal bool, err error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, true, fmt.Errorf("解析URL失败: %w", err)
	}
	req.Header.Set("User-Agent", "clash.meta")
	req.Header.Set("Accept-Encoding", "gzip, zstd")

	transport := &http.Transport{
		Proxy:               nil,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if useProxy {
		if pu, perr := url.Parse(f.SysProxy); perr == nil {
			transport.Proxy = http.ProxyURL(pu)
		} else {
			transport.Proxy = http.ProxyFromEnvironment
		}
	}
	client := &http.Client{Transport: transport}
	defer client.CloseIdleConnections()

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, false, fmt.Errorf("订阅: %s 请求超时 [代理: %v]", target, useProxy)
		}
		return nil, false, fmt.Errorf("订阅: %s 请求失败: %w", target, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusGone, http.StatusUnavailableForLegalReasons:
		return nil, true, fmt.Errorf("订阅链接已失效: %s [代理: %v, 状态码: %d]", target, useProxy, resp.StatusCode)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, true, fmt.Errorf("订阅: %s 权限不足或需要认证 (状态码: %d)", target, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("订阅: %s 状态码: %d", target, resp.StatusCode)
	}

	if f.MaxSize > 0 && resp.ContentLength > f.MaxSize {
		return nil, true, fmt.Errorf("%s (%s): %w", target, units.HumanSize(float64(resp.ContentLength)), ErrTooLarge)
	}

	body, err = f.readBody(resp)
	if err != nil {
		return nil, errors.Is(err, ErrTooLarge), fmt.Errorf("读取订阅链接: %s 数据错误: %w", target, err)
	}
	return body, false, nil
}

// readBody 限速读取并按 Content-Encoding 解压
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if f.bucket != nil {
		r = ratelimit.Reader(r, f.bucket)
	}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip 解压失败: %w", err)
		}
		defer gz.Close()
		r = gz
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("zstd 解压失败: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	if f.MaxSize <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.MaxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}

// buildCandidateURLs 含日期占位符时返回 [今日, 昨日]，否则返回原链接
func (f *Fetcher) buildCandidateURLs(u string) ([]string, bool) {
	if !hasDatePlaceholder(u) {
		return []string{u}, false
	}
	now := f.now()
	slog.Debug("检测到日期占位符，将尝试今日和昨日日期")
	return []string{replaceDatePlaceholders(u, now), replaceDatePlaceholders(u, now.AddDate(0, 0, -1))}, true
}

var datePlaceholders = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(?i)\{Ymd\}`), "20060102"},
	{regexp.MustCompile(`(?i)\{Y-m-d\}`), "2006-01-02"},
	{regexp.MustCompile(`(?i)\{Y_m_d\}`), "2006_01_02"},
	{regexp.MustCompile(`(?i)\{Y\}`), "2006"},
	{regexp.MustCompile(`(?i)\{m\}`), "01"},
	{regexp.MustCompile(`(?i)\{d\}`), "02"},
}

func hasDatePlaceholder(s string) bool {
	for _, p := range datePlaceholders {
		if p.re.MatchString(s) {
			return true
		}
	}
	return false
}

// replaceDatePlaceholders 按时间替换日期占位符，大小写不敏感
func replaceDatePlaceholders(s string, t time.Time) string {
	for _, p := range datePlaceholders {
		s = p.re.ReplaceAllLiteralString(s, t.Format(p.layout))
	}
	return s
}

// ensureScheme 缺少协议时补全，本地地址用 http，其余默认 https
func ensureScheme(u string) string {
	s := strings.TrimSpace(u)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return s
	}
	host := s
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	if h, _, err := splitHostPortLoose(host); err == nil && utils.IsLocalHost(h) {
		return "http://" + s
	}
	return "https://" + s
}

func splitHostPortLoose(hostport string) (string, string, error) {
	d, err := url.Parse("//" + hostport)
	if err != nil {
		return "", "", err
	}
	return d.Hostname(), d.Port(), nil
}

func isLocalURL(s string) bool {
	d, err := url.Parse(s)
	return err == nil && utils.IsLocalHost(d.Hostname())
}

type remoteSubUrls struct {
	SubUrls []string `yaml:"sub-urls"`
}

// fetchRemoteSubUrls 从远程地址读取订阅清单
// 支持 sub-urls 对象、yaml 数组以及按行分隔的纯文本 (# 开头为注释)
func (f *Fetcher) fetchRemoteSubUrls(ctx context.Context, listURL string) ([]string, error) {
	if listURL == "" {
		return nil, errors.New("empty list url")
	}
	data, err := f.FetchSubscription(ctx, Source{Kind: SourceURL, Value: listURL})
	if err != nil {
		return nil, err
	}
	return parseSubList(data)
}

func parseSubList(data []byte) ([]string, error) {
	var obj remoteSubUrls
	if err := yaml.Unmarshal(data, &obj); err == nil && len(obj.SubUrls) > 0 {
		return obj.SubUrls, nil
	}

	var arr []string
	if err := yaml.Unmarshal(data, &arr); err == nil && len(arr) > 0 {
		return arr, nil
	}

	res := make([]string, 0, 16)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "-"); ok {
			line = strings.TrimSpace(after)
		}
		res = append(res, line)
	}
	return res, scanner.Err()
}

// Stats 一次获取的统计信息
type Stats struct {
	Sources   int            `json:"sources" yaml:"sources"`
	Failed    int            `json:"failed" yaml:"failed"`
	PerSource map[string]int `json:"per-source" yaml:"per-source"`
	Raw       int            `json:"raw" yaml:"raw"`
	Unique    int            `json:"unique" yaml:"unique"`
	SysProxy  string         `json:"system-proxy,omitempty" yaml:"system-proxy,omitempty"`
	GhProxy   string         `json:"github-proxy,omitempty" yaml:"github-proxy,omitempty"`
}

// resolveSources 汇总所有来源，忽略 fragment 去重
func (f *Fetcher) resolveSources(ctx context.Context, cfg *config.Config) []Source {
	var srcs []Source
	for _, s := range cfg.SubUrls {
		srcs = append(srcs, Source{Kind: SourceURL, Value: s})
	}
	for _, list := range cfg.SubUrlsRemote {
		remote, err := f.fetchRemoteSubUrls(ctx, utils.WarpURL(list, f.GhProxy))
		if err != nil {
			if !errors.Is(err, ErrIgnore) {
				slog.Warn("获取远程订阅清单失败，已忽略", "error", err)
			}
			continue
		}
		for _, s := range remote {
			srcs = append(srcs, Source{Kind: SourceURL, Value: s})
		}
	}
	for _, s := range cfg.Pools {
		srcs = append(srcs, Source{Kind: SourcePool, Value: s})
	}
	for _, s := range cfg.SubFiles {
		srcs = append(srcs, Source{Kind: SourceFile, Value: s})
	}
	for _, s := range cfg.SubTexts {
		if strings.TrimSpace(s) != "" {
			srcs = append(srcs, Source{Kind: SourceText, Value: s})
		}
	}

	return lo.UniqBy(lo.Filter(srcs, func(s Source, _ int) bool {
		v := strings.TrimSpace(s.Value)
		return v != "" && (s.Kind == SourceText || !strings.HasPrefix(v, "#"))
	}), func(s Source) string {
		if s.Kind == SourceText {
			return "text\x00" + s.Value
		}
		key := strings.TrimSpace(s.Value)
		if d, err := url.Parse(key); err == nil {
			d.Fragment = ""
			key = d.String()
		}
		return key
	})
}

// GetProxies 并发获取并解析所有来源，过滤协议后去重、重命名
func GetProxies(ctx context.Context, cfg *config.Config) ([]protocol.Proxy, *Stats, error) {
	f, err := NewFetcher(cfg)
	if err != nil {
		return nil, nil, err
	}
	f.SysProxy = utils.DetectSysProxy(ctx, cfg.SystemProxy)
	f.GhProxy = utils.DetectGhProxy(ctx, cfg.GithubProxy, cfg.GithubProxyGroup)
	return f.Collect(ctx, cfg)
}

// Collect 使用当前 Fetcher 的代理设置获取所有来源
func (f *Fetcher) Collect(ctx context.Context, cfg *config.Config) ([]protocol.Proxy, *Stats, error) {
	srcs := f.resolveSources(ctx, cfg)
	if len(srcs) == 0 {
		return nil, nil, ErrNoSources
	}

	counts := lo.CountValuesBy(srcs, func(s Source) string { return s.Kind.String() })
	args := make([]any, 0, 2*len(counts)+2)
	for _, k := range []SourceKind{SourceURL, SourcePool, SourceFile, SourceText} {
		if n := counts[k.String()]; n > 0 {
			args = append(args, k.String(), n)
		}
	}
	slog.Info("订阅来源数量", append(args, "总计", len(srcs))...)
	if f.SysProxy != "" {
		slog.Info("", "-system-proxy", f.SysProxy)
	}
	if f.GhProxy != "" {
		slog.Info("", "-github-proxy", f.GhProxy)
	}

	kinds := allowedKinds(cfg.NodeType)
	if len(kinds) > 0 {
		slog.Info("只筛选用户设置的协议", "type", cfg.NodeType)
	}

	type result struct {
		idx     int
		proxies []protocol.Proxy
		err     error
	}

	stats := &Stats{Sources: len(srcs), PerSource: make(map[string]int, len(srcs)), SysProxy: f.SysProxy, GhProxy: f.GhProxy}
	lists := make([][]protocol.Proxy, len(srcs))
	resultChan := make(chan result, 1)
	done := make(chan struct{})

	go func() {
		for r := range resultChan {
			label := srcs[r.idx].Label()
			if r.err != nil {
				stats.Failed++
				if !errors.Is(r.err, ErrIgnore) && !errors.Is(r.err, context.Canceled) {
					slog.Error("获取订阅失败", "source", label, "error", r.err)
				}
				continue
			}
			lists[r.idx] = r.proxies
			stats.PerSource[label] += len(r.proxies)
			slog.Debug("获取订阅成功", "source", label, "节点数量", len(r.proxies))
		}
		close(done)
	}()

	var wg sync.WaitGroup
	concurrentLimit := make(chan struct{}, min(max(cfg.Concurrent, 1), 100))
	for i, src := range srcs {
		select {
		case <-ctx.Done():
		case concurrentLimit <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}
		wg.Go(func() {
			defer func() { <-concurrentLimit }()
			data, err := f.FetchSubscription(ctx, src)
			if err != nil {
				resultChan <- result{idx: i, err: err}
				return
			}
			list := ParseContent(data)
			if len(kinds) > 0 {
				list = lo.Filter(list, func(p protocol.Proxy, _ int) bool { return kinds[p.Kind] })
			}
			resultChan <- result{idx: i, proxies: list}
		})
	}
	wg.Wait()
	close(resultChan)
	<-done

	if err := ctx.Err(); err != nil {
		return nil, stats, err
	}

	all := lo.Flatten(lists)
	stats.Raw = len(all)
	all = RenameDuplicates(ExcludeDuplicates(all))
	stats.Unique = len(all)
	slog.Info("节点获取完成", "原始数量", stats.Raw, "去重后", stats.Unique, "失败来源", stats.Failed)
	return all, stats, nil
}

// allowedKinds 把 node-type 配置转换为协议集合，无法识别的类型忽略
func allowedKinds(types []string) map[protocol.Kind]bool {
	out := make(map[protocol.Kind]bool, len(types))
	for _, t := range types {
		if k, ok := protocol.ParseKind(t); ok {
			out[k] = true
		} else {
			slog.Warn("未知的协议类型，已忽略", "type", t)
		}
	}
	return out
}
