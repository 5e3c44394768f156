package protocol

import (
	"errors"
	"reflect"
	"testing"

	"github.com/sinspired/clash-butler/utils"
)

func vmessLink(json string) string {
	return "vmess://" + utils.Base64Encode(json)
}

func TestParseVmessLink(t *testing.T) {
	t.Run("数字端口", func(t *testing.T) {
		link := "vmess://eyJ2IjoiMiIsInBzIjoiQHZwbnBvb2wiLCJhZGQiOiJrci5haWt1bmFwcC5jb20iLCJwb3J0IjoyMDAwNiwiaWQiOiIyMTM2ZGM2Yy01ZmQ0LTRiZmQtODhhMS0yYWVlYTk4ODhmOGIiLCJhaWQiOjAsInNjeSI6ImF1dG8iLCJuZXQiOiIiLCJ0bHMiOiIifQ=="
		got, err := ParseVmessLink(link)
		if err != nil {
			t.Fatal(err)
		}
		want := Vmess{
			Name: "@vpnpool", Server: "kr.aikunapp.com", Port: 20006,
			UUID: "2136dc6c-5fd4-4bfd-88a1-2aeea9888f8b", Cipher: "auto",
			SkipCertVerify: boolPtr(true), ClientFingerprint: "chrome",
		}
		if !reflect.DeepEqual(*got, want) {
			t.Errorf("got %+v\nwant %+v", *got, want)
		}
	})

	t.Run("字符串端口与 ws", func(t *testing.T) {
		link := vmessLink(`{"v":"2","ps":"ws 节点","add":"cdncdncdncdn.784654.xyz","port":"2052","id":"uuid-1","aid":"0","net":"ws","host":"ca-cfcdn.aikunapp.com","path":"/index?ed=2048","tls":""}`)
		got, err := ParseVmessLink(link)
		if err != nil {
			t.Fatal(err)
		}
		if got.Port != 2052 || got.AlterID != 0 || got.Network != "ws" {
			t.Errorf("got %+v", got)
		}
		if got.WSOpts == nil || got.WSOpts.Path != "/index?ed=2048" || got.WSOpts.Headers["Host"] != "ca-cfcdn.aikunapp.com" {
			t.Errorf("ws-opts 错误: %+v", got.WSOpts)
		}
		if got.TLS != nil {
			t.Errorf("tls 应为空, got %v", *got.TLS)
		}
	})

	t.Run("grpc 与 tls", func(t *testing.T) {
		link := vmessLink(`{"v":2,"ps":"g","add":"g.example.com","port":443,"id":"u","aid":"4","scy":"aes-128-gcm","net":"grpc","path":"","sni":"svc","tls":"tls","alpn":"h2,http/1.1","fp":"firefox"}`)
		got, err := ParseVmessLink(link)
		if err != nil {
			t.Fatal(err)
		}
		if got.TLS == nil || !*got.TLS {
			t.Error("tls 应为 true")
		}
		if got.GrpcOpts == nil || got.GrpcOpts.ServiceName != "svc" {
			t.Errorf("grpc-opts 错误: %+v", got.GrpcOpts)
		}
		if got.AlterID != 4 || got.Cipher != "aes-128-gcm" || got.ClientFingerprint != "firefox" || got.ServerName != "svc" {
			t.Errorf("got %+v", got)
		}
		if !reflect.DeepEqual(got.ALPN, []string{"h2", "http/1.1"}) {
			t.Errorf("alpn = %v", got.ALPN)
		}
	})

	t.Run("旧格式", func(t *testing.T) {
		link := "vmess://" + utils.Base64Encode("auto:b831381d-6324-4d53-ad4f-8cda48b30811@1.2.3.4:10086") + "?remarks=%E6%97%A7%E6%A0%BC%E5%BC%8F&alterId=2"
		got, err := ParseVmessLink(link)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "旧格式" || got.Server != "1.2.3.4" || got.Port != 10086 || got.UUID != "b831381d-6324-4d53-ad4f-8cda48b30811" || got.AlterID != 2 {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("旧格式仅凭据 base64", func(t *testing.T) {
		link := "vmess://" + utils.Base64Encode("aes-128-gcm:uuid-2") + "@example.com:443?remarks=x"
		got, err := ParseVmessLink(link)
		if err != nil {
			t.Fatal(err)
		}
		if got.Cipher != "aes-128-gcm" || got.UUID != "uuid-2" || got.Server != "example.com" {
			t.Errorf("got %+v", got)
		}
	})
}

func TestParseVmessLinkRejectsNetwork(t *testing.T) {
	for _, network := range []string{"quic", "http"} {
		link := vmessLink(`{"v":"2","ps":"q","add":"1.2.3.4","port":443,"id":"u","aid":0,"net":"` + network + `"}`)
		v, err := ParseVmessLink(link)
		var ule *UnsupportedLinkError
		if !errors.As(err, &ule) {
			t.Fatalf("%s: 期望 UnsupportedLinkError, 实际 %v", network, err)
		}
		if v != nil {
			t.Errorf("%s: 解析失败时不应返回节点", network)
		}
	}
}

func TestVmessRoundTrip(t *testing.T) {
	want := Vmess{
		Name: "香港 vmess", Server: "hk.example.com", Port: 443, UUID: "u-1", AlterID: 1,
		Cipher: "auto", TLS: boolPtr(true), SkipCertVerify: boolPtr(true), ServerName: "sni.example.com",
		Network: "ws", WSOpts: &WSOptions{Path: "/ws", Headers: map[string]string{"Host": "cdn.example.com"}},
		ClientFingerprint: "chrome",
	}
	link, err := want.Link()
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseVmessLink(link)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("got %+v\nwant %+v", *got, want)
	}
}
