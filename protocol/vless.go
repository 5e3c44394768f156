package protocol

import (
	"errors"
	"strings"
)

const schemeVless = "vless://"

// Vless vless 节点
type Vless struct {
	Name              string          `json:"name"`
	Server            string          `json:"server"`
	Port              Port            `json:"port"`
	UUID              string          `json:"uuid"`
	Flow              string          `json:"flow,omitempty"`
	UDP               *bool           `json:"udp,omitempty"`
	TLS               *bool           `json:"tls,omitempty"`
	SkipCertVerify    *bool           `json:"skip-cert-verify,omitempty"`
	ServerName        string          `json:"servername,omitempty"`
	ClientFingerprint string          `json:"client-fingerprint,omitempty"`
	Network           string          `json:"network,omitempty"`
	WSOpts            *WSOptions      `json:"ws-opts,omitempty"`
	GrpcOpts          *GrpcOptions    `json:"grpc-opts,omitempty"`
	RealityOpts       *RealityOptions `json:"reality-opts,omitempty"`
	ALPN              []string        `json:"alpn,omitempty"`
}

// ParseVlessLink 解析 vless://uuid@server:port?security=&type=#name
func ParseVlessLink(link string) (*Vless, error) {
	body, ok := cutScheme(strings.TrimSpace(link), schemeVless)
	if !ok {
		return nil, unsupported(link, "协议头不是 vless://", nil)
	}
	body, name := splitFragment(body)
	main, query, _ := strings.Cut(body, "?")
	main = strings.TrimSuffix(main, "/")

	at := strings.LastIndex(main, "@")
	if at < 0 {
		return nil, unsupported(link, "vless 链接格式错误", errMissingAt)
	}
	uuid := unescape(main[:at])
	if uuid == "" {
		return nil, unsupported(link, "vless 缺少 uuid", errors.New("empty uuid"))
	}
	server, port, err := parseHostPort(main[at+1:])
	if err != nil {
		return nil, unsupported(link, "vless 地址无效", err)
	}

	v := &Vless{
		Name:           name,
		Server:         server,
		Port:           port,
		UUID:           uuid,
		UDP:            boolPtr(true),
		SkipCertVerify: boolPtr(true),
	}

	params := parseQuery(query)
	v.Flow = params["flow"]
	v.ServerName = unescape(params["sni"])
	v.ClientFingerprint = params["fp"]
	if alpn := unescape(params["alpn"]); alpn != "" {
		v.ALPN = strings.Split(alpn, ",")
	}

	switch strings.ToLower(params["security"]) {
	case "tls":
		v.TLS = boolPtr(true)
	case "reality":
		v.TLS = boolPtr(true)
		v.RealityOpts = &RealityOptions{
			PublicKey: unescape(params["pbk"]),
			ShortID:   unescape(params["sid"]),
		}
	}

	switch network := strings.ToLower(params["type"]); network {
	case "ws":
		v.Network = network
		v.WSOpts = newWSOptions(unescape(params["path"]), unescape(params["host"]))
	case "grpc":
		v.Network = network
		v.GrpcOpts = &GrpcOptions{ServiceName: unescape(params["serviceName"])}
	case "":
	default:
		v.Network = network
	}

	if v.Name == "" {
		v.Name = defaultName(v.Server, v.Port)
	}
	return v, nil
}

func (v *Vless) Link() (string, error) {
	return "", unsupported("", "vless", ErrLinkEncodeUnsupported)
}

func (v *Vless) Equal(o *Vless) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.Server == o.Server && v.Port == o.Port && v.UUID == o.UUID
}

func (v *Vless) identity() string {
	return identity(v.Server, portString(v.Port), v.UUID)
}

func (v *Vless) clone() *Vless {
	c := *v
	c.UDP = cloneBool(v.UDP)
	c.TLS = cloneBool(v.TLS)
	c.SkipCertVerify = cloneBool(v.SkipCertVerify)
	c.WSOpts = v.WSOpts.clone()
	c.GrpcOpts = v.GrpcOpts.clone()
	c.RealityOpts = v.RealityOpts.clone()
	c.ALPN = cloneStrings(v.ALPN)
	return &c
}
