package protocol

import (
	"errors"
	"strings"
)

const (
	schemeHysteria2 = "hysteria2://"
	schemeHy2       = "hy2://"
)

// Hysteria2 hysteria2 节点
// Ports 为端口跳跃范围，与 Port 相互独立
type Hysteria2 struct {
	Name              string      `json:"name"`
	Server            string      `json:"server"`
	Port              Port        `json:"port,omitempty"`
	Ports             string      `json:"ports,omitempty"`
	Password          string      `json:"password"`
	Up                LooseString `json:"up,omitempty"`
	Down              LooseString `json:"down,omitempty"`
	Obfs              string      `json:"obfs,omitempty"`
	ObfsPassword      string      `json:"obfs-password,omitempty"`
	SNI               string      `json:"sni,omitempty"`
	SkipCertVerify    *bool       `json:"skip-cert-verify,omitempty"`
	ClientFingerprint string      `json:"client-fingerprint,omitempty"`
	ALPN              []string    `json:"alpn,omitempty"`
	UDP               *bool       `json:"udp,omitempty"`
}

// ParseHysteria2Link 解析 hysteria2:// 与 hy2:// 链接
func ParseHysteria2Link(link string) (*Hysteria2, error) {
	link = strings.TrimSpace(link)
	body, ok := cutScheme(link, schemeHysteria2)
	if !ok {
		if body, ok = cutScheme(link, schemeHy2); !ok {
			return nil, unsupported(link, "协议头不是 hysteria2://", nil)
		}
	}
	body, name := splitFragment(body)
	main, query, found := strings.Cut(body, "/?")
	if !found {
		main, query, _ = strings.Cut(body, "?")
	}
	main = strings.TrimSuffix(main, "/")

	at := strings.LastIndex(main, "@")
	if at < 0 {
		return nil, unsupported(link, "hysteria2 链接格式错误", errMissingAt)
	}
	server, portToken, err := splitAuthority(main[at+1:])
	if err != nil {
		return nil, unsupported(link, "hysteria2 地址无效", err)
	}

	h := &Hysteria2{
		Name:     name,
		Server:   server,
		Password: unescape(main[:at]),
	}
	if h.Port, h.Ports, err = parseHysteria2Port(portToken); err != nil {
		return nil, unsupported(link, "hysteria2 端口无效", err)
	}

	params := parseQuery(query)
	if v, ok := params["insecure"]; ok {
		h.SkipCertVerify = boolPtr(isTruthy(v))
	}
	h.SNI = unescape(params["sni"])
	h.Obfs = unescape(params["obfs"])
	h.ObfsPassword = unescape(params["obfs-password"])
	if h.Ports == "" {
		h.Ports = unescape(params["mport"])
	}
	h.Up = LooseString(unescape(params["up"]))
	h.Down = LooseString(unescape(params["down"]))
	if alpn := unescape(params["alpn"]); alpn != "" {
		h.ALPN = strings.Split(alpn, ",")
	}
	// 没有 fp 时默认 chrome，显式的 fp= 表示不设置
	if fp, ok := params["fp"]; ok {
		h.ClientFingerprint = unescape(fp)
	} else {
		h.ClientFingerprint = "chrome"
	}

	if h.Name == "" {
		h.Name = defaultName(h.Server, h.Port)
	}
	return h, nil
}

// parseHysteria2Port 端口段可能是 443、20000-30000 或 443,20000-30000
func parseHysteria2Port(token string) (Port, string, error) {
	if port, err := parsePort(token); err == nil {
		return port, "", nil
	}
	first, rest, hasComma := strings.Cut(token, ",")
	start, _, _ := strings.Cut(first, "-")
	port, err := parsePort(start)
	if err != nil {
		return 0, "", err
	}
	if !hasComma {
		return port, token, nil
	}
	if rest == "" {
		return 0, "", errors.New("端口范围为空")
	}
	return port, rest, nil
}

// Link 导出链接，端口范围写入 mport
func (h *Hysteria2) Link() (string, error) {
	var b strings.Builder
	b.WriteString(schemeHysteria2)
	b.WriteString(encodeName(h.Password))
	b.WriteByte('@')
	b.WriteString(joinHostPort(h.Server, h.Port))
	b.WriteString("/?")

	var params []string
	add := func(key, value string) {
		if value != "" {
			params = append(params, key+"="+value)
		}
	}
	if h.SkipCertVerify != nil {
		if *h.SkipCertVerify {
			add("insecure", "1")
		} else {
			add("insecure", "0")
		}
	}
	add("sni", encodeName(h.SNI))
	add("obfs", encodeName(h.Obfs))
	add("obfs-password", encodeName(h.ObfsPassword))
	add("mport", encodeName(h.Ports))
	add("up", encodeName(string(h.Up)))
	add("down", encodeName(string(h.Down)))
	if len(h.ALPN) > 0 {
		alpn := make([]string, len(h.ALPN))
		for i, a := range h.ALPN {
			alpn[i] = encodeName(a)
		}
		add("alpn", strings.Join(alpn, ","))
	}
	switch h.ClientFingerprint {
	case "chrome":
	case "":
		params = append(params, "fp=")
	default:
		add("fp", encodeName(h.ClientFingerprint))
	}
	b.WriteString(strings.Join(params, "&"))

	if h.Name != "" {
		b.WriteByte('#')
		b.WriteString(encodeName(h.Name))
	}
	return b.String(), nil
}

// Equal 有固定端口时比较 (server, password, port)，否则比较 (server, ports)
func (h *Hysteria2) Equal(o *Hysteria2) bool {
	if h == nil || o == nil {
		return h == o
	}
	switch {
	case h.Port != 0 && o.Port != 0:
		return h.Server == o.Server && h.Password == o.Password && h.Port == o.Port
	case h.Port == 0 && o.Port == 0:
		return h.Server == o.Server && h.Ports == o.Ports
	default:
		return false
	}
}

func (h *Hysteria2) identity() string {
	if h.Port != 0 {
		return identity("port", h.Server, h.Password, portString(h.Port))
	}
	return identity("ports", h.Server, h.Ports)
}

func (h *Hysteria2) clone() *Hysteria2 {
	c := *h
	c.SkipCertVerify = cloneBool(h.SkipCertVerify)
	c.UDP = cloneBool(h.UDP)
	c.ALPN = cloneStrings(h.ALPN)
	return &c
}
