package protocol

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sinspired/clash-butler/utils"
)

const schemeSS = "ss://"

// SS shadowsocks 节点
type SS struct {
	Name       string         `json:"name"`
	Server     string         `json:"server"`
	Port       Port           `json:"port"`
	Cipher     string         `json:"cipher"`
	Password   string         `json:"password"`
	Plugin     string         `json:"plugin,omitempty"`
	PluginOpts map[string]any `json:"plugin-opts,omitempty"`
	UDP        *bool          `json:"udp,omitempty"`
}

// ParseSSLink 解析 ss:// 链接
// 兼容 SIP002 与整段 base64 两种写法
func ParseSSLink(link string) (*SS, error) {
	body, ok := cutScheme(strings.TrimSpace(link), schemeSS)
	if !ok {
		return nil, unsupported(link, "协议头不是 ss://", nil)
	}
	body, name := splitFragment(body)
	main, query, _ := strings.Cut(body, "?")

	ss, err := parseSSMain(strings.TrimSuffix(main, "/"))
	if err != nil {
		// 整段 base64: ss://b64(cipher:password@server:port)#name
		decoded, derr := utils.Base64Decode(main)
		if derr != nil {
			return nil, unsupported(link, "无法解析 ss 链接", err)
		}
		decoded, innerName := splitFragment(decoded)
		if name == "" {
			name = innerName
		}
		innerMain, innerQuery, _ := strings.Cut(decoded, "?")
		if query == "" {
			query = innerQuery
		}
		ss, err = parseSSMain(strings.TrimSuffix(innerMain, "/"))
		if err != nil {
			return nil, unsupported(link, "无法解析 ss 链接", err)
		}
	}

	if query != "" {
		if raw, ok := parseQuery(query)["plugin"]; ok && raw != "" {
			ss.Plugin, ss.PluginOpts = parseSSPlugin(raw)
		}
	}

	ss.Name = name
	if ss.Name == "" {
		ss.Name = defaultName(ss.Server, ss.Port)
	}
	return ss, nil
}

func parseSSMain(main string) (*SS, error) {
	at := strings.LastIndex(main, "@")
	if at < 0 {
		return nil, errMissingAt
	}
	server, port, err := parseHostPort(main[at+1:])
	if err != nil {
		return nil, err
	}

	userinfo := main[:at]
	creds, err := utils.Base64Decode(userinfo)
	if err != nil || !strings.Contains(creds, ":") {
		// SIP002 AEAD-2022 允许明文 cipher:password
		creds = unescape(userinfo)
	}
	cipher, password, ok := strings.Cut(creds, ":")
	if !ok || cipher == "" {
		return nil, errors.New("缺少加密方式或密码")
	}

	return &SS{
		Server:   server,
		Port:     port,
		Cipher:   cipher,
		Password: password,
	}, nil
}

// parseSSPlugin plugin=name;k%3Dv;flag
// 分隔符本身被转义 (obfs-local%3Bobfs%3Dhttp) 时整体解码一次，否则逐项解码
func parseSSPlugin(raw string) (string, map[string]any) {
	if !strings.Contains(raw, ";") && strings.Contains(strings.ToUpper(raw), "%3B") {
		raw = unescape(raw)
	}
	items := strings.Split(raw, ";")
	name := unescape(items[0])
	if len(items) == 1 {
		return name, nil
	}

	opts := make(map[string]any, len(items)-1)
	for _, item := range items[1:] {
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(unescape(item), "=")
		if !ok {
			opts[k] = true
			continue
		}
		opts[k] = v
	}
	return name, opts
}

// Link 导出为 SIP002 链接，凭据使用带填充的标准 base64
func (s *SS) Link() (string, error) {
	var b strings.Builder
	b.WriteString(schemeSS)
	b.WriteString(utils.Base64Encode(s.Cipher + ":" + s.Password))
	b.WriteByte('@')
	b.WriteString(joinHostPort(s.Server, s.Port))

	if s.Plugin != "" {
		b.WriteString("?plugin=")
		b.WriteString(encodeName(s.Plugin))
		if s.PluginOpts != nil && len(s.PluginOpts) == 0 {
			b.WriteByte(';')
		}
		for _, k := range slices.Sorted(maps.Keys(s.PluginOpts)) {
			b.WriteByte(';')
			if v, ok := s.PluginOpts[k].(bool); ok && v {
				b.WriteString(encodeName(k))
				continue
			}
			b.WriteString(encodeName(fmt.Sprintf("%s=%v", k, s.PluginOpts[k])))
		}
	}

	if s.Name != "" {
		b.WriteByte('#')
		b.WriteString(encodeName(s.Name))
	}
	return b.String(), nil
}

func (s *SS) Equal(o *SS) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.Server == o.Server && s.Port == o.Port && s.Password == o.Password
}

func (s *SS) identity() string {
	return identity(s.Server, portString(s.Port), s.Password)
}

func (s *SS) clone() *SS {
	c := *s
	c.PluginOpts = cloneMap(s.PluginOpts)
	c.UDP = cloneBool(s.UDP)
	return &c
}
