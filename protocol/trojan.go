package protocol

import (
	"errors"
	"strings"
)

const schemeTrojan = "trojan://"

// Trojan trojan 节点
type Trojan struct {
	Name              string       `json:"name"`
	Server            string       `json:"server"`
	Port              Port         `json:"port"`
	Password          string       `json:"password"`
	UDP               *bool        `json:"udp,omitempty"`
	SNI               string       `json:"sni,omitempty"`
	SkipCertVerify    *bool        `json:"skip-cert-verify,omitempty"`
	Network           string       `json:"network,omitempty"`
	WSOpts            *WSOptions   `json:"ws-opts,omitempty"`
	GrpcOpts          *GrpcOptions `json:"grpc-opts,omitempty"`
	ClientFingerprint string       `json:"client-fingerprint,omitempty"`
	ALPN              []string     `json:"alpn,omitempty"`
}

// ParseTrojanLink 解析 trojan://password@server:port?sni=&allowInsecure=#name
// 节点名按最后一个 # 切分
func ParseTrojanLink(link string) (*Trojan, error) {
	body, ok := cutScheme(strings.TrimSpace(link), schemeTrojan)
	if !ok {
		return nil, unsupported(link, "协议头不是 trojan://", nil)
	}
	body, name := splitFragmentLast(body)
	main, query, _ := strings.Cut(body, "?")
	main = strings.TrimSuffix(main, "/")

	at := strings.LastIndex(main, "@")
	if at < 0 {
		return nil, unsupported(link, "trojan 链接格式错误", errMissingAt)
	}
	password := unescape(main[:at])
	if password == "" {
		return nil, unsupported(link, "trojan 缺少密码", errors.New("empty password"))
	}
	server, port, err := parseHostPort(main[at+1:])
	if err != nil {
		return nil, unsupported(link, "trojan 地址无效", err)
	}

	t := &Trojan{
		Name:     name,
		Server:   server,
		Port:     port,
		Password: password,
	}

	params := parseQuery(query)
	t.SNI = unescape(params["sni"])
	if t.SNI == "" {
		t.SNI = unescape(params["peer"])
	}
	if isTruthy(params["allowInsecure"]) {
		t.SkipCertVerify = boolPtr(true)
	}
	t.ClientFingerprint = params["fp"]
	if alpn := unescape(params["alpn"]); alpn != "" {
		t.ALPN = strings.Split(alpn, ",")
	}
	switch network := strings.ToLower(params["type"]); network {
	case "ws":
		t.Network = network
		t.WSOpts = newWSOptions(unescape(params["path"]), unescape(params["host"]))
	case "grpc":
		t.Network = network
		t.GrpcOpts = &GrpcOptions{ServiceName: unescape(params["serviceName"])}
	}

	if t.Name == "" {
		t.Name = defaultName(t.Server, t.Port)
	}
	return t, nil
}

func (t *Trojan) Link() (string, error) {
	return "", unsupported("", "trojan", ErrLinkEncodeUnsupported)
}

func (t *Trojan) Equal(o *Trojan) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.Server == o.Server && t.Port == o.Port && t.Password == o.Password
}

func (t *Trojan) identity() string {
	return identity(t.Server, portString(t.Port), t.Password)
}

func (t *Trojan) clone() *Trojan {
	c := *t
	c.UDP = cloneBool(t.UDP)
	c.SkipCertVerify = cloneBool(t.SkipCertVerify)
	c.WSOpts = t.WSOpts.clone()
	c.GrpcOpts = t.GrpcOpts.clone()
	c.ALPN = cloneStrings(t.ALPN)
	return &c
}
