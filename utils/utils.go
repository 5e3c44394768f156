package utils

import (
	"crypto/rand"
	"math/big"
	"net"
	"strings"
)

// NormalizeGitHubRawURL 将 GitHub 的 blob/raw 页面链接转换为 raw.githubusercontent.com 直链
func NormalizeGitHubRawURL(urlStr string) string {
	if strings.Contains(urlStr, "raw.githubusercontent.com") || !strings.Contains(urlStr, "github.com") {
		return urlStr
	}
	// 链接已经带有 github 代理前缀时不处理
	if !strings.HasPrefix(urlStr, "https://github.com/") && !strings.HasPrefix(urlStr, "https://www.github.com/") {
		return urlStr
	}

	// github.com/{user}/{repo}/[blob|raw]/{branch}/{path}
	// -> raw.githubusercontent.com/{user}/{repo}/{branch}/{path}
	urlStr = strings.Replace(urlStr, "www.github.com", "github.com", 1)
	if !strings.Contains(urlStr, "/blob/") && !strings.Contains(urlStr, "/raw/") {
		return urlStr
	}
	urlStr = strings.Replace(urlStr, "github.com", "raw.githubusercontent.com", 1)
	urlStr = strings.Replace(urlStr, "/blob/", "/", 1)
	urlStr = strings.Replace(urlStr, "/raw/", "/", 1)
	return urlStr
}

// WarpURL 为 github 资源添加代理前缀，ghProxy 为空时只做直链转换
func WarpURL(url, ghProxy string) string {
	url = NormalizeGitHubRawURL(url)
	if ghProxy == "" {
		return url
	}
	if strings.HasPrefix(url, "https://raw.githubusercontent.com") ||
		(strings.Contains(url, "github.com/") &&
			(strings.Contains(url, "/releases/download") || strings.Contains(url, "/archive/"))) {
		return ghProxy + url
	}
	return url
}

// IsLocalHost 回环地址、内网主机名或私有地址
func IsLocalHost(host string) bool {
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified()
	}
	return !strings.Contains(host, ".")
}

// GenerateRandomString 生成指定长度的随机字符串
func GenerateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			panic(err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b)
}
