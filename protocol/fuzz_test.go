package protocol

import (
	"errors"
	"testing"
	"unicode/utf8"
)

var fuzzSeeds = []string{
	"ss://YWVzLTEyOC1nY206ZDljNTc3MzI4ZmIzNDlmZQ==@120.232.73.68:40676#%F0%9F%87%AD%F0%9F%87%B0HK",
	"ss://YWVzLTI1Ni1nY206UTFHVVo3VkRQWk9BU0M5SEAxMjAuMjQxLjQ1LjUwOjE3MDAxI1VTLTAx",
	"ss://a@[::1",
	"ssr://MjAwMTpkYjg6OjU6NDQzOm9yaWdpbjphZXMtMjU2LWNmYjpwbGFpbjpjSGMvP3JlbWFya3M9ZGpZ",
	"ssr://OjoKOjo6Og",
	"vmess://eyJ2IjoiMiIsInBzIjoiQHZwbnBvb2wiLCJhZGQiOiJrci5haWt1bmFwcC5jb20iLCJwb3J0IjoyMDAwNiwiaWQiOiIyMTM2ZGM2Yy01ZmQ0LTRiZmQtODhhMS0yYWVlYTk4ODhmOGIiLCJhaWQiOjAsInNjeSI6ImF1dG8iLCJuZXQiOiIiLCJ0bHMiOiIifQ==",
	"vmess://@:?",
	"trojan://p@h:1?type=ws#a#b",
	"vless://u@[2001:bc8:1d90:d4e::]:9999?security=reality&pbk=x",
	"vless://@]:",
	hy2Scenario,
	"hy2://p@h:1,",
	"hysteria2://p@h:-/?",
	"#",
	"",
}

// FuzzFromLink 任意输入都不能 panic，成功时节点必须可以被再次处理
func FuzzFromLink(f *testing.F) {
	for _, s := range fuzzSeeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, link string) {
		p, err := FromLink(link)
		if err != nil {
			var ule *UnsupportedLinkError
			if !errors.As(err, &ule) {
				t.Fatalf("错误类型应为 UnsupportedLinkError: %T %v", err, err)
			}
			return
		}
		if p.Hash() != p.Clone().Hash() || !p.Equal(p.Clone()) {
			t.Fatalf("克隆后身份不一致: %q", link)
		}
		if _, err := p.ToJSON(); err != nil {
			t.Fatalf("ToJSON(%q): %v", link, err)
		}
		_, _ = p.Link()
	})
}

// FuzzSSRoundTrip 成功解析的 ss 链接重新编码后应得到相同的节点
func FuzzSSRoundTrip(f *testing.F) {
	for _, s := range fuzzSeeds[:3] {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, link string) {
		ss, err := ParseSSLink(link)
		if err != nil || !utf8.ValidString(ss.Cipher+ss.Password) {
			return
		}
		encoded, err := ss.Link()
		if err != nil {
			t.Fatal(err)
		}
		again, err := ParseSSLink(encoded)
		if err != nil {
			t.Fatalf("重新解析 %q 失败: %v", encoded, err)
		}
		if !ss.Equal(again) || ss.Cipher != again.Cipher {
			t.Fatalf("往返不一致: %+v vs %+v", ss, again)
		}
	})
}
