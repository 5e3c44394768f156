package protocol

import "strings"

// Kind 协议类型，声明顺序即排序顺序
type Kind int

const (
	KindSS Kind = iota
	KindSSR
	KindVmess
	KindVless
	KindTrojan
	KindHysteria2
	KindHysteria
	KindWireGuard
	KindUnknown
)

var kindNames = [...]string{
	KindSS:        "ss",
	KindSSR:       "ssr",
	KindVmess:     "vmess",
	KindVless:     "vless",
	KindTrojan:    "trojan",
	KindHysteria2: "hysteria2",
	KindHysteria:  "hysteria",
	KindWireGuard: "wireguard",
	KindUnknown:   "unknown",
}

// 常见别名
var kindAliases = map[string]Kind{
	"shadowsocks": KindSS,
	"hy2":         KindHysteria2,
	"wg":          KindWireGuard,
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind 解析协议标签，大小写不敏感
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	if k, ok := kindAliases[s]; ok {
		return k, true
	}
	return KindUnknown, false
}
