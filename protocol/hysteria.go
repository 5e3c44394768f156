package protocol

// Hysteria hysteria (v1) 节点，只从结构化配置中读取，没有分享链接格式
type Hysteria struct {
	Name           string      `json:"name"`
	Server         string      `json:"server"`
	Port           Port        `json:"port,omitempty"`
	Ports          string      `json:"ports,omitempty"`
	Protocol       string      `json:"protocol,omitempty"`
	AuthStr        string      `json:"auth-str,omitempty"`
	Obfs           string      `json:"obfs,omitempty"`
	Up             LooseString `json:"up,omitempty"`
	Down           LooseString `json:"down,omitempty"`
	SNI            string      `json:"sni,omitempty"`
	SkipCertVerify *bool       `json:"skip-cert-verify,omitempty"`
	ALPN           []string    `json:"alpn,omitempty"`
	UDP            *bool       `json:"udp,omitempty"`
}

func (h *Hysteria) Link() (string, error) {
	return "", unsupported("", "hysteria", ErrLinkEncodeUnsupported)
}

func (h *Hysteria) Equal(o *Hysteria) bool {
	if h == nil || o == nil {
		return h == o
	}
	switch {
	case h.Port != 0 && o.Port != 0:
		return h.Server == o.Server && h.Port == o.Port
	case h.Port == 0 && o.Port == 0:
		return h.Server == o.Server && h.Ports == o.Ports
	default:
		return false
	}
}

func (h *Hysteria) identity() string {
	if h.Port != 0 {
		return identity("port", h.Server, portString(h.Port))
	}
	return identity("ports", h.Server, h.Ports)
}

func (h *Hysteria) clone() *Hysteria {
	c := *h
	c.SkipCertVerify = cloneBool(h.SkipCertVerify)
	c.UDP = cloneBool(h.UDP)
	c.ALPN = cloneStrings(h.ALPN)
	return &c
}
