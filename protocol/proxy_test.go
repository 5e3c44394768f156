package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestFromLinkDispatch(t *testing.T) {
	tests := []struct {
		link string
		kind Kind
	}{
		{"ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@120.232.73.68:40676#HK", KindSS},
		{"ssr://MjAwMTpkYjg6OjU6NDQzOm9yaWdpbjphZXMtMjU2LWNmYjpwbGFpbjpjSGMvP3JlbWFya3M9ZGpZ", KindSSR},
		{"vmess://eyJ2IjoiMiIsInBzIjoiQHZwbnBvb2wiLCJhZGQiOiJrci5haWt1bmFwcC5jb20iLCJwb3J0IjoyMDAwNiwiaWQiOiIyMTM2ZGM2Yy01ZmQ0LTRiZmQtODhhMS0yYWVlYTk4ODhmOGIiLCJhaWQiOjAsInNjeSI6ImF1dG8iLCJuZXQiOiIiLCJ0bHMiOiIifQ==", KindVmess},
		{"trojan://pass@example.com:443#t", KindTrojan},
		{hy2Scenario, KindHysteria2},
		{"hy2://p@1.2.3.4:443#h", KindHysteria2},
		{"vless://u@[2001:bc8:1d90:d4e::]:9999?security=tls#v", KindVless},
		{"  SS://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@1.2.3.4:1#upper  ", KindSS},
	}
	for _, tt := range tests {
		p, err := FromLink(tt.link)
		if err != nil {
			t.Fatalf("FromLink(%q): %v", tt.link, err)
		}
		if p.Kind != tt.kind {
			t.Errorf("%q: kind = %v, want %v", tt.link, p.Kind, tt.kind)
		}
		if p.Name() == "" || p.Server() == "" {
			t.Errorf("%q: 缺少 name 或 server", tt.link)
		}
	}
}

func TestFromLinkUnknownScheme(t *testing.T) {
	_, err := FromLink("tuic://uuid:pw@1.2.3.4:443")
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("期望 ErrUnknownKind, 实际 %v", err)
	}
	var ule *UnsupportedLinkError
	if !errors.As(err, &ule) {
		t.Fatal("期望 UnsupportedLinkError")
	}
	if want := `未知的协议头 "tuic"`; ule.Reason != want {
		t.Errorf("reason = %q, want %q", ule.Reason, want)
	}
}

func TestFromMap(t *testing.T) {
	p, err := FromMap(map[string]any{
		"type":               "hysteria2",
		"name":               "h",
		"server":             "1.2.3.4",
		"port":               "443",
		"password":           "pw",
		"obfs":               "salamander",
		"obfs_password":      "legacy",
		"skip_cert_verify":   true,
		"client_fingerprint": "ios",
		"up":                 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	h := p.Hysteria2
	if p.Kind != KindHysteria2 || h == nil {
		t.Fatalf("got %+v", p)
	}
	if h.Port != 443 || h.ObfsPassword != "legacy" || h.ClientFingerprint != "ios" || h.Up != "50" {
		t.Errorf("got %+v", h)
	}
	if h.SkipCertVerify == nil || !*h.SkipCertVerify {
		t.Error("skip_cert_verify 应被规范化为 skip-cert-verify")
	}
}

func TestFromMapErrors(t *testing.T) {
	cases := []map[string]any{
		{"name": "no type", "server": "1.2.3.4", "port": 1},
		{"type": "tuic", "server": "1.2.3.4", "port": 1},
		{"type": "wireguard", "server": "1.2.3.4", "port": 1},
		{"type": "unknown", "server": "1.2.3.4", "port": 1},
		{"type": "ss", "server": "", "port": 1},
		{"type": "ss", "server": "1.2.3.4", "port": 70000},
		{"type": "vmess", "server": "1.2.3.4", "port": "abc"},
	}
	for _, m := range cases {
		if _, err := FromMap(m); err == nil {
			t.Errorf("%v: 期望错误", m)
		}
	}
}

func TestFromJSONDefaultName(t *testing.T) {
	p, err := FromJSON([]byte(`{"type":"trojan","server":"t.example.com","port":8443,"password":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "t.example.com:8443" {
		t.Errorf("name = %q", p.Name())
	}
}

func TestToJSONCarriesType(t *testing.T) {
	p, err := FromLink("ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@120.232.73.68:40676#HK")
	if err != nil {
		t.Fatal(err)
	}
	data, err := p.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != "ss" || m["cipher"] != "aes-128-gcm" {
		t.Errorf("got %v", m)
	}
	if _, ok := m["plugin"]; ok {
		t.Error("未设置的字段不应出现")
	}

	back, err := FromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(p) || back.Name() != "HK" {
		t.Errorf("JSON 往返后不相等: %+v", back.SS)
	}

	mm, err := p.ToMap()
	if err != nil {
		t.Fatal(err)
	}
	if port, ok := mm["port"].(int64); !ok || port != 40676 {
		t.Errorf("port 应为 int64, got %T %v", mm["port"], mm["port"])
	}
}

func TestProxyEqualAndHash(t *testing.T) {
	a, _ := FromLink("ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@1.2.3.4:443#a")
	b, _ := FromLink("ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@1.2.3.4:443#b")
	c, _ := FromLink("trojan://d9c577328fb349fe@1.2.3.4:443#a")
	if !a.Equal(b) || a.Hash() != b.Hash() {
		t.Error("不同名称的相同节点应相等且哈希一致")
	}
	if a.Equal(c) {
		t.Error("不同协议不应相等")
	}
	if a.Hash() == c.Hash() {
		t.Error("不同协议的哈希不应相同")
	}
}

func TestProxyCloneIsDeep(t *testing.T) {
	p, err := FromLink("vless://u@v.example.com:443?security=tls&type=ws&host=h.example.com&path=%2Fws&alpn=h2#v")
	if err != nil {
		t.Fatal(err)
	}
	c := p.Clone()
	c.SetName("renamed")
	c.Vless.WSOpts.Headers["Host"] = "other"
	c.Vless.ALPN[0] = "h3"
	*c.Vless.TLS = false

	if p.Name() != "v" {
		t.Errorf("原节点名称被修改: %q", p.Name())
	}
	if p.Vless.WSOpts.Headers["Host"] != "h.example.com" || p.Vless.ALPN[0] != "h2" || !*p.Vless.TLS {
		t.Error("Clone 与原节点共享了数据")
	}
	if !p.Equal(c) {
		t.Error("克隆的节点身份应一致")
	}
}

func TestProxyLink(t *testing.T) {
	p, _ := FromLink("trojan://pass@example.com:443#t")
	if _, err := p.Link(); !errors.Is(err, ErrLinkEncodeUnsupported) {
		t.Errorf("期望 ErrLinkEncodeUnsupported, 实际 %v", err)
	}
	if _, err := (Proxy{Kind: KindWireGuard}).Link(); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("期望 ErrUnknownKind, 实际 %v", err)
	}
}

func TestKind(t *testing.T) {
	order := []Kind{KindSS, KindSSR, KindVmess, KindVless, KindTrojan, KindHysteria2, KindHysteria, KindWireGuard, KindUnknown}
	for i := 1; i < len(order); i++ {
		if order[i-1] >= order[i] {
			t.Errorf("%v 应排在 %v 之前", order[i-1], order[i])
		}
	}
	for _, k := range order {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if k, ok := ParseKind("hy2"); !ok || k != KindHysteria2 {
		t.Error("hy2 应识别为 hysteria2")
	}
	if k, ok := ParseKind("Shadowsocks"); !ok || k != KindSS {
		t.Error("shadowsocks 应识别为 ss")
	}
	if _, ok := ParseKind("tuic"); ok {
		t.Error("tuic 不应被识别")
	}
	if Kind(42).String() != "unknown" {
		t.Error("越界的 Kind 应输出 unknown")
	}
}
