package protocol

import (
	"errors"
	"strings"

	"github.com/sinspired/clash-butler/utils"
)

const schemeSSR = "ssr://"

// SSR shadowsocksR 节点
type SSR struct {
	Name          string `json:"name"`
	Server        string `json:"server"`
	Port          Port   `json:"port"`
	Cipher        string `json:"cipher"`
	Password      string `json:"password"`
	Obfs          string `json:"obfs"`
	ObfsParam     string `json:"obfs-param,omitempty"`
	Protocol      string `json:"protocol"`
	ProtocolParam string `json:"protocol-param,omitempty"`
	UDP           *bool  `json:"udp,omitempty"`
}

// ParseSSRLink 解析 ssr://b64(server:port:protocol:cipher:obfs:b64(password)/?remarks=...)
func ParseSSRLink(link string) (*SSR, error) {
	body, ok := cutScheme(strings.TrimSpace(link), schemeSSR)
	if !ok {
		return nil, unsupported(link, "协议头不是 ssr://", nil)
	}
	body, fragName := splitFragment(body)

	decoded, err := utils.Base64Decode(body)
	if err != nil {
		return nil, unsupported(link, "ssr 内容不是有效的 base64", err)
	}

	main, query, found := strings.Cut(decoded, "/?")
	if !found {
		main, query, _ = strings.Cut(decoded, "?")
	}

	// 从右往左取字段，IPv6 地址中的冒号归入 server
	fields := strings.Split(main, ":")
	n := len(fields)
	if n < 6 {
		return nil, unsupported(link, "ssr 字段数量不足", errors.New(main))
	}
	server := strings.Trim(strings.Join(fields[:n-5], ":"), "[]")
	if server == "" {
		return nil, unsupported(link, "ssr 缺少服务器地址", errEmptyHost)
	}
	port, err := parsePort(fields[n-5])
	if err != nil {
		return nil, unsupported(link, "ssr 端口无效", err)
	}

	ssr := &SSR{
		Server:   server,
		Port:     port,
		Protocol: fields[n-4],
		Cipher:   fields[n-3],
		Obfs:     fields[n-2],
		Password: utils.Base64DecodeOr(fields[n-1]),
	}

	params := parseQuery(query)
	value := func(key string) string {
		return utils.Base64DecodeOr(unescape(params[key]))
	}
	ssr.ObfsParam = value("obfsparam")
	ssr.ProtocolParam = value("protoparam")
	ssr.Name = strings.TrimSpace(value("remarks"))

	if ssr.Name == "" {
		ssr.Name = fragName
	}
	if ssr.Name == "" {
		ssr.Name = defaultName(ssr.Server, ssr.Port)
	}
	return ssr, nil
}

func (s *SSR) Link() (string, error) {
	return "", unsupported("", "ssr", ErrLinkEncodeUnsupported)
}

func (s *SSR) Equal(o *SSR) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Server == o.Server && s.Port == o.Port && s.Password == o.Password
}

func (s *SSR) identity() string {
	return identity(s.Server, portString(s.Port), s.Password)
}

func (s *SSR) clone() *SSR {
	c := *s
	c.UDP = cloneBool(s.UDP)
	return &c
}
