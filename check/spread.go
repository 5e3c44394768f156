package check

import (
	"net/netip"
	"strings"

	"github.com/sinspired/clash-butler/protocol"
)

// SpreadByServer 重新排列节点，使同一服务器 (IPv4 按 /24) 的节点尽量不相邻
// 并发检测时避免同时向同一台服务器发起大量连接，结果是确定的
func SpreadByServer(proxies []protocol.Proxy) []protocol.Proxy {
	out := make([]protocol.Proxy, 0, len(proxies))
	for _, i := range spreadOrder(proxies) {
		out = append(out, proxies[i])
	}
	return out
}

// spreadOrder 按服务器分组后轮流取出，返回下标顺序
func spreadOrder(proxies []protocol.Proxy) []int {
	var keys []string
	groups := make(map[string][]int)
	for i, p := range proxies {
		key := serverKey(p.Server())
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], i)
	}

	order := make([]int, 0, len(proxies))
	for len(order) < len(proxies) {
		for _, key := range keys {
			if g := groups[key]; len(g) > 0 {
				order = append(order, g[0])
				groups[key] = g[1:]
			}
		}
	}
	return order
}

func serverKey(server string) string {
	addr, err := netip.ParseAddr(strings.Trim(server, "[]"))
	if err != nil {
		return strings.ToLower(server)
	}
	if addr.Is4() {
		p, _ := addr.Prefix(24)
		return p.String()
	}
	return addr.String()
}
