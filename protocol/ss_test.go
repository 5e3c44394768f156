package protocol

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseSSLink(t *testing.T) {
	tests := []struct {
		name string
		link string
		want SS
	}{
		{
			name: "SIP002",
			link: "ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@120.232.73.68:40676#%F0%9F%87%AD%F0%9F%87%B0HK",
			want: SS{Name: "🇭🇰HK", Server: "120.232.73.68", Port: 40676, Cipher: "aes-128-gcm", Password: "d9c577328fb349fe"},
		},
		{
			name: "插件参数",
			link: "ss://cmM0LW1kNToydnpobzU=@127.0.0.1:8388/?plugin=obfs-local;obfs%3Dhttp;obfs-host%3D89c19109670.microsoft.com#test",
			want: SS{
				Name: "test", Server: "127.0.0.1", Port: 8388, Cipher: "rc4-md5", Password: "2vzho5",
				Plugin:     "obfs-local",
				PluginOpts: map[string]any{"obfs": "http", "obfs-host": "89c19109670.microsoft.com"},
			},
		},
		{
			name: "插件参数整体转义",
			link: "ss://cmM0LW1kNToydnpobzU=@127.0.0.1:8388?plugin=obfs-local%3Bobfs%3Dtls%3Btls#x",
			want: SS{
				Name: "x", Server: "127.0.0.1", Port: 8388, Cipher: "rc4-md5", Password: "2vzho5",
				Plugin:     "obfs-local",
				PluginOpts: map[string]any{"obfs": "tls", "tls": true},
			},
		},
		{
			name: "整段 base64",
			link: "ss://YWVzLTI1Ni1nY206UTFHVVo3VkRQWk9BU0M5SEAxMjAuMjQxLjQ1LjUwOjE3MDAx#US-01",
			want: SS{Name: "US-01", Server: "120.241.45.50", Port: 17001, Cipher: "aes-256-gcm", Password: "Q1GUZ7VDPZOASC9H"},
		},
		{
			name: "整段 base64 内含节点名",
			link: "ss://YWVzLTI1Ni1nY206UTFHVVo3VkRQWk9BU0M5SEAxMjAuMjQxLjQ1LjUwOjE3MDAxI1VTLTAx",
			want: SS{Name: "US-01", Server: "120.241.45.50", Port: 17001, Cipher: "aes-256-gcm", Password: "Q1GUZ7VDPZOASC9H"},
		},
		{
			name: "AEAD-2022 明文凭据",
			link: "ss://2022-blake3-aes-256-gcm:YctPZ6U7xPPcU%2Bgp3u%2B0tx%2FtRizJN9K8y%2BuKlW2qjlI%3D@[2001:db8::1]:8388#v6",
			want: SS{Name: "v6", Server: "2001:db8::1", Port: 8388, Cipher: "2022-blake3-aes-256-gcm", Password: "YctPZ6U7xPPcU+gp3u+0tx/tRizJN9K8y+uKlW2qjlI="},
		},
		{
			name: "缺少节点名",
			link: "ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@1.2.3.4:443",
			want: SS{Name: "1.2.3.4:443", Server: "1.2.3.4", Port: 443, Cipher: "aes-128-gcm", Password: "d9c577328fb349fe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSSLink(tt.link)
			if err != nil {
				t.Fatalf("ParseSSLink: %v", err)
			}
			if !reflect.DeepEqual(*got, tt.want) {
				t.Errorf("got %+v\nwant %+v", *got, tt.want)
			}
		})
	}
}

func TestParseSSLinkErrors(t *testing.T) {
	links := []string{
		"vmess://abc",
		"ss://",
		"ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@1.2.3.4",
		"ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@1.2.3.4:70000",
		"ss://bm9jb2xvbg==@1.2.3.4:443",
		"ss://@:",
	}
	for _, link := range links {
		_, err := ParseSSLink(link)
		var ule *UnsupportedLinkError
		if !errors.As(err, &ule) {
			t.Errorf("%q: 期望 UnsupportedLinkError, 实际 %v", link, err)
		}
	}
}

func TestSSLinkExact(t *testing.T) {
	links := []string{
		"ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@120.232.73.68:40676#%F0%9F%87%AD%F0%9F%87%B0HK",
		"ss://Y2hhY2hhMjAtaWV0ZjpIdVRhb0Nsb3Vk@cm1-hk.hutaonode3.top:12452?plugin=obfs-local;mode%3Dwebsocket#%E9%A6%99%E6%B8%AF%40vpnhat",
	}
	for _, link := range links {
		ss, err := ParseSSLink(link)
		if err != nil {
			t.Fatalf("ParseSSLink(%q): %v", link, err)
		}
		got, err := ss.Link()
		if err != nil {
			t.Fatal(err)
		}
		if got != link {
			t.Errorf("重新编码不一致\n got %s\nwant %s", got, link)
		}
	}
}

func TestSSRoundTrip(t *testing.T) {
	records := []SS{
		{Name: "香港 01", Server: "hk.example.com", Port: 443, Cipher: "aes-256-gcm", Password: "p@ss:word"},
		{Name: "plugin", Server: "1.1.1.1", Port: 8388, Cipher: "chacha20-ietf-poly1305", Password: "x",
			Plugin: "v2ray-plugin", PluginOpts: map[string]any{"mode": "websocket", "host": "a.b", "path": "/ws?ed=2048"}},
		{Name: "empty opts", Server: "1.1.1.1", Port: 8388, Cipher: "aes-128-gcm", Password: "x",
			Plugin: "obfs-local", PluginOpts: map[string]any{}},
		{Name: "v6", Server: "2001:db8::2", Port: 1, Cipher: "aes-128-gcm", Password: "x"},
		{Name: "n", Server: "1.1.1.1", Port: 8388, Cipher: "aes-128-gcm", Password: "x",
			Plugin: "v2ray-plugin", PluginOpts: map[string]any{"mode": "websocket", "path": "/a;b", "host": "k=v", "tag": "100%25"}},
	}
	for _, want := range records {
		link, err := want.Link()
		if err != nil {
			t.Fatalf("Link: %v", err)
		}
		got, err := ParseSSLink(link)
		if err != nil {
			t.Fatalf("ParseSSLink(%q): %v", link, err)
		}
		if !reflect.DeepEqual(*got, want) {
			t.Errorf("往返不一致 %s\n got %+v\nwant %+v", link, *got, want)
		}
	}
}

func TestSSEqual(t *testing.T) {
	a := &SS{Name: "a", Server: "s", Port: 1, Password: "p", Cipher: "aes-128-gcm"}
	b := &SS{Name: "b", Server: "s", Port: 1, Password: "p", Cipher: "chacha20"}
	c := &SS{Name: "a", Server: "s", Port: 2, Password: "p"}
	if !a.Equal(b) {
		t.Error("名称与加密方式不应影响相等性")
	}
	if a.Equal(c) {
		t.Error("端口不同应不相等")
	}
	if a.identity() != b.identity() {
		t.Error("相等的节点身份应一致")
	}
}

func TestParseSSPluginEscaping(t *testing.T) {
	tests := []struct {
		raw      string
		wantName string
		wantOpts map[string]any
	}{
		{"obfs-local%3Bobfs%3Dhttp%3Bobfs-host%3Da.com", "obfs-local", map[string]any{"obfs": "http", "obfs-host": "a.com"}},
		{"v2ray-plugin;mode%3Dwebsocket;path%3D%2Fa%3Bb", "v2ray-plugin", map[string]any{"mode": "websocket", "path": "/a;b"}},
		{"v2ray-plugin;tls;host%3Da%3Db", "v2ray-plugin", map[string]any{"tls": true, "host": "a=b"}},
		{"v2ray-plugin;path%3D%2F100%2525", "v2ray-plugin", map[string]any{"path": "/100%25"}},
	}
	for _, tt := range tests {
		name, opts := parseSSPlugin(tt.raw)
		if name != tt.wantName || !reflect.DeepEqual(opts, tt.wantOpts) {
			t.Errorf("parseSSPlugin(%q) = %q %v, want %q %v", tt.raw, name, opts, tt.wantName, tt.wantOpts)
		}
	}
}
