package proxies

import (
	"bufio"
	"bytes"
	"log/slog"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/sinspired/clash-butler/protocol"
	"github.com/sinspired/clash-butler/utils"
)

// ParseContent 从订阅内容中解析节点
//
// 依次尝试: 带 proxies 列表的 yaml 文档、整体 base64 编码的链接列表、逐行链接。
// 都不匹配时返回空列表，单个节点解析失败不影响其他节点。
func ParseContent(content []byte) []protocol.Proxy {
	if list, ok := parseYAML(content); ok {
		return list
	}

	trimmed := strings.TrimSpace(string(content))
	if decoded, err := utils.Base64Decode(trimmed); err == nil && decoded != "" {
		return parseLines(decoded, true)
	}

	return parseLines(trimmed, false)
}

// parseYAML 第二个返回值表示内容是否为带 proxies 键的 yaml 文档
func parseYAML(content []byte) ([]protocol.Proxy, bool) {
	var doc map[string]any
	if err := yaml.Unmarshal(content, &doc); err != nil || doc == nil {
		return nil, false
	}

	raw, ok := doc["proxies"]
	if !ok {
		raw, ok = doc["Proxies"]
	}
	if !ok {
		return nil, false
	}

	items, _ := raw.([]any)
	out := make([]protocol.Proxy, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		p, err := protocol.FromMap(m)
		if err != nil {
			slog.Debug("跳过无法解析的节点", "name", m["name"], "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, true
}

func parseLines(text string, logFailures bool) []protocol.Proxy {
	var out []protocol.Proxy
	scanner := bufio.NewScanner(bytes.NewReader([]byte(text)))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p, err := protocol.FromLink(line)
		if err != nil {
			if logFailures {
				slog.Debug("跳过无法解析的链接", "error", err)
			}
			continue
		}
		out = append(out, p)
	}
	return out
}
