package proxies

import (
	"sort"

	"github.com/sinspired/clash-butler/protocol"
)

// ExcludeDuplicates 去除重复节点，保留首次出现的节点，结果按协议类型稳定排序
func ExcludeDuplicates(proxies []protocol.Proxy) []protocol.Proxy {
	buckets := make(map[uint64][]int, len(proxies))
	result := make([]protocol.Proxy, 0, len(proxies))

	for _, p := range proxies {
		h := p.Hash()
		dup := false
		for _, idx := range buckets[h] {
			if result[idx].Equal(p) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		buckets[h] = append(buckets[h], len(result))
		result = append(result, p)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})
	return result
}
