package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// Proxy 带协议标签的节点，Kind 对应的指针字段有且仅有一个非空
type Proxy struct {
	Kind      Kind
	SS        *SS
	SSR       *SSR
	Vmess     *Vmess
	Vless     *Vless
	Trojan    *Trojan
	Hysteria2 *Hysteria2
	Hysteria  *Hysteria
}

type record interface {
	Link() (string, error)
	identity() string
}

// 按顺序匹配协议头
var linkParsers = []struct {
	scheme string
	parse  func(string) (Proxy, error)
}{
	{schemeSS, func(l string) (Proxy, error) { r, err := ParseSSLink(l); return Proxy{Kind: KindSS, SS: r}, err }},
	{schemeSSR, func(l string) (Proxy, error) { r, err := ParseSSRLink(l); return Proxy{Kind: KindSSR, SSR: r}, err }},
	{schemeVmess, func(l string) (Proxy, error) {
		r, err := ParseVmessLink(l)
		return Proxy{Kind: KindVmess, Vmess: r}, err
	}},
	{schemeTrojan, func(l string) (Proxy, error) {
		r, err := ParseTrojanLink(l)
		return Proxy{Kind: KindTrojan, Trojan: r}, err
	}},
	{schemeHysteria2, parseHysteria2Proxy},
	{schemeHy2, parseHysteria2Proxy},
	{schemeVless, func(l string) (Proxy, error) {
		r, err := ParseVlessLink(l)
		return Proxy{Kind: KindVless, Vless: r}, err
	}},
}

func parseHysteria2Proxy(link string) (Proxy, error) {
	r, err := ParseHysteria2Link(link)
	return Proxy{Kind: KindHysteria2, Hysteria2: r}, err
}

// FromLink 根据协议头选择对应的解析器
func FromLink(link string) (Proxy, error) {
	link = strings.TrimSpace(link)
	for _, p := range linkParsers {
		if _, ok := cutScheme(link, p.scheme); ok {
			proxy, err := p.parse(link)
			if err != nil {
				return Proxy{}, err
			}
			return proxy, nil
		}
	}

	scheme, _, ok := strings.Cut(link, "://")
	if !ok {
		scheme = ""
	}
	return Proxy{}, unsupported(link, fmt.Sprintf("未知的协议头 %q", scheme), ErrUnknownKind)
}

// 旧版配置中使用下划线的键
var legacyKeys = map[string]string{
	"obfs_password":      "obfs-password",
	"skip_cert_verify":   "skip-cert-verify",
	"client_fingerprint": "client-fingerprint",
}

// FromMap 从 Clash 配置中的单个节点构造 Proxy，依据 type 字段分派
func FromMap(m map[string]any) (Proxy, error) {
	tag, _ := m["type"].(string)
	kind, ok := ParseKind(tag)
	if !ok || kind == KindWireGuard || kind == KindUnknown {
		return Proxy{}, unsupported("", fmt.Sprintf("type %q", tag), ErrUnknownKind)
	}

	normalized := make(map[string]any, len(m))
	for k, v := range m {
		normalized[k] = v
	}
	for legacy, key := range legacyKeys {
		v, ok := normalized[legacy]
		if !ok {
			continue
		}
		if _, exists := normalized[key]; !exists {
			normalized[key] = v
		}
		delete(normalized, legacy)
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return Proxy{}, unsupported("", "节点无法序列化", err)
	}
	return decodeRecord(kind, data)
}

// FromJSON 解析单个节点的 JSON 文档
func FromJSON(data []byte) (Proxy, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Proxy{}, unsupported("", "节点 JSON 无效", err)
	}
	return FromMap(m)
}

func decodeRecord(kind Kind, data []byte) (Proxy, error) {
	p := Proxy{Kind: kind}
	var target any
	switch kind {
	case KindSS:
		p.SS = new(SS)
		target = p.SS
	case KindSSR:
		p.SSR = new(SSR)
		target = p.SSR
	case KindVmess:
		p.Vmess = new(Vmess)
		target = p.Vmess
	case KindVless:
		p.Vless = new(Vless)
		target = p.Vless
	case KindTrojan:
		p.Trojan = new(Trojan)
		target = p.Trojan
	case KindHysteria2:
		p.Hysteria2 = new(Hysteria2)
		target = p.Hysteria2
	case KindHysteria:
		p.Hysteria = new(Hysteria)
		target = p.Hysteria
	default:
		return Proxy{}, unsupported("", kind.String(), ErrUnknownKind)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return Proxy{}, unsupported("", kind.String()+" 节点字段无效", err)
	}
	if strings.TrimSpace(p.Server()) == "" {
		return Proxy{}, unsupported("", kind.String()+" 节点缺少 server", errEmptyHost)
	}
	if p.Name() == "" {
		p.SetName(defaultName(p.Server(), p.Port()))
	}
	return p, nil
}

func (p Proxy) record() record {
	switch p.Kind {
	case KindSS:
		if p.SS != nil {
			return p.SS
		}
	case KindSSR:
		if p.SSR != nil {
			return p.SSR
		}
	case KindVmess:
		if p.Vmess != nil {
			return p.Vmess
		}
	case KindVless:
		if p.Vless != nil {
			return p.Vless
		}
	case KindTrojan:
		if p.Trojan != nil {
			return p.Trojan
		}
	case KindHysteria2:
		if p.Hysteria2 != nil {
			return p.Hysteria2
		}
	case KindHysteria:
		if p.Hysteria != nil {
			return p.Hysteria
		}
	}
	return nil
}

// fields 返回节点公共字段的指针
func (p *Proxy) fields() (name *string, server *string, port *Port) {
	switch p.Kind {
	case KindSS:
		if r := p.SS; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	case KindSSR:
		if r := p.SSR; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	case KindVmess:
		if r := p.Vmess; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	case KindVless:
		if r := p.Vless; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	case KindTrojan:
		if r := p.Trojan; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	case KindHysteria2:
		if r := p.Hysteria2; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	case KindHysteria:
		if r := p.Hysteria; r != nil {
			return &r.Name, &r.Server, &r.Port
		}
	}
	return nil, nil, nil
}

func (p Proxy) Name() string {
	if name, _, _ := p.fields(); name != nil {
		return *name
	}
	return ""
}

func (p *Proxy) SetName(name string) {
	if n, _, _ := p.fields(); n != nil {
		*n = name
	}
}

func (p Proxy) Server() string {
	if _, server, _ := p.fields(); server != nil {
		return *server
	}
	return ""
}

func (p Proxy) Port() Port {
	if _, _, port := p.fields(); port != nil {
		return *port
	}
	return 0
}

// Link 导出分享链接
func (p Proxy) Link() (string, error) {
	r := p.record()
	if r == nil {
		return "", unsupported("", p.Kind.String(), ErrUnknownKind)
	}
	return r.Link()
}

// Equal 协议不同直接判为不等，否则按各协议的身份字段比较
func (p Proxy) Equal(o Proxy) bool {
	if p.Kind != o.Kind {
		return false
	}
	switch p.Kind {
	case KindSS:
		return p.SS.Equal(o.SS)
	case KindSSR:
		return p.SSR.Equal(o.SSR)
	case KindVmess:
		return p.Vmess.Equal(o.Vmess)
	case KindVless:
		return p.Vless.Equal(o.Vless)
	case KindTrojan:
		return p.Trojan.Equal(o.Trojan)
	case KindHysteria2:
		return p.Hysteria2.Equal(o.Hysteria2)
	case KindHysteria:
		return p.Hysteria.Equal(o.Hysteria)
	}
	return false
}

// Hash FNV-1a(kind, 身份字段)，与 Equal 保持一致
func (p Proxy) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.Kind.String()))
	h.Write([]byte{0})
	if r := p.record(); r != nil {
		h.Write([]byte(r.identity()))
	}
	return h.Sum64()
}

// Clone 深拷贝，不共享任何 map 或 slice
func (p Proxy) Clone() Proxy {
	c := Proxy{Kind: p.Kind}
	switch p.Kind {
	case KindSS:
		if p.SS != nil {
			c.SS = p.SS.clone()
		}
	case KindSSR:
		if p.SSR != nil {
			c.SSR = p.SSR.clone()
		}
	case KindVmess:
		if p.Vmess != nil {
			c.Vmess = p.Vmess.clone()
		}
	case KindVless:
		if p.Vless != nil {
			c.Vless = p.Vless.clone()
		}
	case KindTrojan:
		if p.Trojan != nil {
			c.Trojan = p.Trojan.clone()
		}
	case KindHysteria2:
		if p.Hysteria2 != nil {
			c.Hysteria2 = p.Hysteria2.clone()
		}
	case KindHysteria:
		if p.Hysteria != nil {
			c.Hysteria = p.Hysteria.clone()
		}
	}
	return c
}

// ToMap 节点字段加上 type，数字统一为 int64 或 float64
func (p Proxy) ToMap() (map[string]any, error) {
	r := p.record()
	if r == nil {
		return nil, fmt.Errorf("序列化节点失败: %w", ErrUnknownKind)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("序列化节点失败: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("反序列化节点失败: %w", err)
	}
	normalizeNumbers(m)
	m["type"] = p.Kind.String()
	return m, nil
}

// ToJSON 输出的 JSON 总是带有 type 字段
func (p Proxy) ToJSON() ([]byte, error) {
	m, err := p.ToMap()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func normalizeNumbers(m map[string]any) {
	for k, v := range m {
		m[k] = normalizeNumber(v)
	}
}

func normalizeNumber(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		normalizeNumbers(val)
		return val
	case []any:
		for i := range val {
			val[i] = normalizeNumber(val[i])
		}
		return val
	default:
		return v
	}
}
