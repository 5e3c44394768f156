package check

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oschwald/maxminddb-golang/v2"
	"github.com/sinspired/checkip/pkg/ipinfo"
	"github.com/sinspired/clash-butler/protocol"
	proxyutils "github.com/sinspired/clash-butler/proxy"
)

// ExitLocator 通过节点访问多个 ip 查询接口，综合判断出口位置
// db 可以为 nil，此时只使用在线接口
func ExitLocator(db *maxminddb.Reader) Locator {
	return func(ctx context.Context, client *http.Client) (proxyutils.GeoInfo, bool) {
		cli, err := ipinfo.New(
			ipinfo.WithHttpClient(client),
			ipinfo.WithDBReader(db),
		)
		if err != nil {
			slog.Debug("创建 ipinfo 客户端失败", "error", err)
			return proxyutils.GeoInfo{}, false
		}
		defer cli.Close()

		loc, ip, tag, err := cli.GetAnalyzed(ctx)
		if err != nil || loc == "" {
			return proxyutils.GeoInfo{}, false
		}
		slog.Debug("获取节点位置成功", "loc", loc, "ip", ip, "tag", tag)
		return proxyutils.GeoInfo{IP: ip, CountryCode: strings.ToUpper(loc)}, true
	}
}

// GeoLookup 用检测结果中的出口位置构造重命名查询，没有结果的节点交给 fallback
func GeoLookup(results []Result, fallback proxyutils.GeoLookup) proxyutils.GeoLookup {
	found := make(map[uint64][]Result, len(results))
	for _, r := range results {
		if r.GeoOK {
			h := r.Proxy.Hash()
			found[h] = append(found[h], r)
		}
	}
	return func(p protocol.Proxy) (proxyutils.GeoInfo, bool) {
		for _, r := range found[p.Hash()] {
			if r.Proxy.Equal(p) {
				return r.Geo, true
			}
		}
		if fallback != nil {
			return fallback(p)
		}
		return proxyutils.GeoInfo{}, false
	}
}
