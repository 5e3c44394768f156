package protocol

import (
	"errors"
	"testing"
)

func TestParseVlessLink(t *testing.T) {
	link := "vless://2cd6ed0f-636e-4e6c-9449-5a263d7a0fa5@192.9.165.253:20001?encryption=none&security=tls&sni=cfed.tgzdyz2.top&fp=random&type=ws&host=cfed.tgzdyz2.top&path=%2FTG%40ZDYZ2%3Fed%3D2560#TG%40ZDYZ2%20-%E6%BE%B3%E5%A4%A7%E5%88%A9%E4%BA%9A%F0%9F%87%A6%F0%9F%87%BA"
	got, err := ParseVlessLink(link)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "TG@ZDYZ2 -澳大利亚🇦🇺" {
		t.Errorf("name = %q", got.Name)
	}
	if got.Server != "192.9.165.253" || got.Port != 20001 || got.UUID != "2cd6ed0f-636e-4e6c-9449-5a263d7a0fa5" {
		t.Errorf("got %+v", got)
	}
	if got.TLS == nil || !*got.TLS {
		t.Error("security=tls 应设置 tls")
	}
	if got.Network != "ws" || got.WSOpts == nil || got.WSOpts.Path != "/TG@ZDYZ2?ed=2560" || got.WSOpts.Headers["Host"] != "cfed.tgzdyz2.top" {
		t.Errorf("ws-opts = %+v", got.WSOpts)
	}
	if got.ServerName != "cfed.tgzdyz2.top" || got.ClientFingerprint != "random" {
		t.Errorf("servername = %q, fp = %q", got.ServerName, got.ClientFingerprint)
	}
	if got.UDP == nil || !*got.UDP || got.SkipCertVerify == nil || !*got.SkipCertVerify {
		t.Error("udp 与 skip-cert-verify 默认应为 true")
	}
}

func TestParseVlessLinkIPv6(t *testing.T) {
	got, err := ParseVlessLink("vless://uuid-v6@[2001:bc8:1d90:d4e::]:9999?encryption=none&security=none&type=tcp#v6")
	if err != nil {
		t.Fatal(err)
	}
	if got.Server != "2001:bc8:1d90:d4e::" {
		t.Errorf("server = %q", got.Server)
	}
	if got.Port != 9999 {
		t.Errorf("port = %d", got.Port)
	}
	if got.TLS != nil {
		t.Error("security=none 不应设置 tls")
	}
}

func TestParseVlessLinkReality(t *testing.T) {
	got, err := ParseVlessLink("vless://u@r.example.com:443?security=reality&pbk=PUBKEY&sid=6ba85179&flow=xtls-rprx-vision&type=grpc&serviceName=grpc-svc#r")
	if err != nil {
		t.Fatal(err)
	}
	if got.RealityOpts == nil || got.RealityOpts.PublicKey != "PUBKEY" || got.RealityOpts.ShortID != "6ba85179" {
		t.Errorf("reality-opts = %+v", got.RealityOpts)
	}
	if got.TLS == nil || !*got.TLS {
		t.Error("reality 应设置 tls")
	}
	if got.Flow != "xtls-rprx-vision" {
		t.Errorf("flow = %q", got.Flow)
	}
	if got.GrpcOpts == nil || got.GrpcOpts.ServiceName != "grpc-svc" {
		t.Errorf("grpc-opts = %+v", got.GrpcOpts)
	}
}

func TestParseVlessLinkErrors(t *testing.T) {
	for _, link := range []string{
		"vless://[2001:db8::1]:443",
		"vless://u@[2001:db8::1:443",
		"vless://u@[2001:db8::1]",
		"vless://u@host:-1",
	} {
		_, err := ParseVlessLink(link)
		var ule *UnsupportedLinkError
		if !errors.As(err, &ule) {
			t.Errorf("%q: 期望 UnsupportedLinkError, 实际 %v", link, err)
		}
	}
}
