package proxies

import (
	"hash/fnv"
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/biter777/countries"
	"github.com/sinspired/clash-butler/protocol"
)

// GeoInfo 节点的地理位置信息，字段未知时为空
type GeoInfo struct {
	IP          string
	CountryCode string
	Country     string
	City        string
	ISP         string
}

// GeoLookup 查询节点位置，ok 为 false 表示查询失败
type GeoLookup func(p protocol.Proxy) (info GeoInfo, ok bool)

// RenameDuplicates 去掉名称末尾的数字后，同名节点依次编号为 name1, name2...
// 唯一的名称保持去掉数字后的形式，结果按名称稳定排序
func RenameDuplicates(proxies []protocol.Proxy) []protocol.Proxy {
	bases := make([]string, len(proxies))
	used := make(map[string]int, len(proxies))
	for i, p := range proxies {
		bases[i] = strings.TrimRightFunc(p.Name(), isASCIIDigit)
		used[bases[i]]++
	}
	counts := maps.Clone(used)

	next := make(map[string]int)
	for i := range proxies {
		base := bases[i]
		if counts[base] <= 1 {
			proxies[i].SetName(base)
			continue
		}
		n := next[base]
		var name string
		for {
			n++
			name = base + strconv.Itoa(n)
			if _, exists := used[name]; !exists {
				break
			}
		}
		next[base] = n
		used[name] = 1
		proxies[i].SetName(name)
	}

	sort.SliceStable(proxies, func(i, j int) bool {
		return proxies[i].Name() < proxies[j].Name()
	})
	return proxies
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

// UnsetNames 丢弃原名称，改为 server_ 加节点 json 哈希的前 5 位数字
func UnsetNames(proxies []protocol.Proxy) []protocol.Proxy {
	for i := range proxies {
		data, err := proxies[i].ToJSON()
		if err != nil {
			continue
		}
		h := fnv.New64a()
		h.Write(data)
		digits := strconv.FormatUint(h.Sum64(), 10)
		proxies[i].SetName("server_" + digits[:min(5, len(digits))])
	}
	return proxies
}

// AddPrefix 为所有节点名称添加前缀
func AddPrefix(proxies []protocol.Proxy, prefix string) []protocol.Proxy {
	if prefix == "" {
		return proxies
	}
	for i := range proxies {
		if !strings.HasPrefix(proxies[i].Name(), prefix) {
			proxies[i].SetName(prefix + proxies[i].Name())
		}
	}
	return proxies
}

// RenameByPattern 按模板重命名节点，随后为重名节点编号
//
// 支持的变量: ${COUNTRYCODE} ${FLAG} ${COUNTRY} ${CITY} ${ISP} ${IP} ${NAME}
// 查询失败或展开结果为空的节点保留原名称
func RenameByPattern(proxies []protocol.Proxy, pattern string, lookup GeoLookup) []protocol.Proxy {
	if pattern == "" || lookup == nil {
		return RenameDuplicates(proxies)
	}
	for i := range proxies {
		info, ok := lookup(proxies[i])
		if !ok {
			continue
		}
		if name := strings.TrimSpace(ExpandPattern(pattern, proxies[i].Name(), info)); name != "" {
			proxies[i].SetName(name)
		}
	}
	return RenameDuplicates(proxies)
}

// ExpandPattern 展开命名模板中的变量
func ExpandPattern(pattern, name string, info GeoInfo) string {
	code := strings.ToUpper(info.CountryCode)
	country := info.Country
	if country == "" && code != "" {
		if c := countries.ByName(code); c != countries.Unknown {
			country = c.String()
		}
	}
	flag := ""
	if code != "" {
		flag = CountryCodeToFlag(code)
	}

	r := strings.NewReplacer(
		"${COUNTRYCODE}", code,
		"${FLAG}", flag,
		"${COUNTRY}", country,
		"${CITY}", info.City,
		"${ISP}", info.ISP,
		"${IP}", info.IP,
		"${NAME}", name,
	)
	return r.Replace(pattern)
}

// CountryCodeToFlag 两位国家代码转换为旗帜 emoji，无法识别时返回海盗旗
func CountryCodeToFlag(code string) string {
	if len(code) != 2 {
		return "🏴‍☠"
	}
	code = strings.ToUpper(code)
	if code[0] < 'A' || code[0] > 'Z' || code[1] < 'A' || code[1] > 'Z' {
		return "🏴‍☠"
	}
	r1 := rune(code[0]-'A') + 0x1F1E6
	r2 := rune(code[1]-'A') + 0x1F1E6
	return string([]rune{r1, r2})
}
