package protocol

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var (
	errMissingAt   = errors.New("缺少 @ 分隔符")
	errMissingPort = errors.New("缺少端口")
	errBadBracket  = errors.New("IPv6 地址缺少右括号")
	errEmptyHost   = errors.New("服务器地址为空")
)

// cutScheme 去掉协议头，大小写不敏感
func cutScheme(link, scheme string) (string, bool) {
	if len(link) < len(scheme) || !strings.EqualFold(link[:len(scheme)], scheme) {
		return "", false
	}
	return link[len(scheme):], true
}

// splitFragment 在第一个 # 处切分出节点名
func splitFragment(s string) (body, name string) {
	body, frag, ok := strings.Cut(s, "#")
	if !ok {
		return body, ""
	}
	return body, decodeName(frag)
}

// splitFragmentLast 在最后一个 # 处切分，密码中可能含有 #
func splitFragmentLast(s string) (body, name string) {
	i := strings.LastIndex(s, "#")
	if i < 0 {
		return s, ""
	}
	return s[:i], decodeName(s[i+1:])
}

// decodeName 按路径规则解码，+ 保持原样；解码失败时保留原文
func decodeName(frag string) string {
	if name, err := url.PathUnescape(frag); err == nil {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(frag)
}

// encodeName 除 RFC 3986 非保留字符外全部转义，空格写作 %20
func encodeName(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// unescape 解码失败时返回原文
func unescape(s string) string {
	if v, err := url.PathUnescape(s); err == nil {
		return v
	}
	return s
}

// parseQuery 解析 k=v&k=v，值保持原样，重复的键以最后一次为准
func parseQuery(q string) map[string]string {
	params := make(map[string]string)
	for pair := range strings.SplitSeq(q, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		params[k] = v
	}
	return params
}

// splitAuthority 拆分 host:port，支持 [v6]:port，否则按最后一个冒号切分
// 端口部分原样返回，由调用方解析
func splitAuthority(authority string) (host, port string, err error) {
	if strings.HasPrefix(authority, "[") {
		end := strings.Index(authority, "]")
		if end < 0 {
			return "", "", errBadBracket
		}
		host = authority[1:end]
		rest := authority[end+1:]
		if !strings.HasPrefix(rest, ":") {
			return "", "", errMissingPort
		}
		port = rest[1:]
	} else {
		i := strings.LastIndex(authority, ":")
		if i < 0 {
			return "", "", errMissingPort
		}
		host, port = authority[:i], authority[i+1:]
	}
	if host == "" {
		return "", "", errEmptyHost
	}
	if port == "" {
		return "", "", errMissingPort
	}
	return host, port, nil
}

// parseHostPort 拆分并校验端口
func parseHostPort(authority string) (string, Port, error) {
	host, portStr, err := splitAuthority(authority)
	if err != nil {
		return "", 0, err
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

// joinHostPort IPv6 地址加上方括号
func joinHostPort(host string, port Port) string {
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return host + ":" + strconv.Itoa(int(port))
}

// defaultName 链接中没有节点名时使用 server:port
func defaultName(server string, port Port) string {
	return server + ":" + strconv.Itoa(int(port))
}

func isTruthy(v string) bool {
	v = strings.TrimSpace(v)
	return v == "1" || strings.EqualFold(v, "true")
}

// identity 用不可见分隔符拼接身份字段
func identity(fields ...string) string {
	return strings.Join(fields, "\x00")
}

func portString(p Port) string {
	return strconv.Itoa(int(p))
}
