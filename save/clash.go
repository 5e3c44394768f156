package save

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/sinspired/clash-butler/protocol"
)

//go:embed templates/clash.yaml
var DefaultClashTemplate []byte

// 输出时排在前面的字段，其余按字母序
var leadingKeys = []string{"name", "type", "server", "port"}

// RenderClash 把节点写入 clash 模板
//
// 节点追加到 proxies 列表；带 filter 正则的策略组追加匹配的节点名称并去掉 filter；
// 最终没有任何节点的策略组填入 DIRECT。模板其余内容与键顺序保持不变。
func RenderClash(template []byte, proxies []protocol.Proxy) ([]byte, error) {
	if len(template) == 0 {
		template = DefaultClashTemplate
	}

	var doc yaml.MapSlice
	if err := yaml.UnmarshalWithOptions(template, &doc, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("解析 clash 模板失败: %w", err)
	}

	items := make([]any, 0, len(proxies))
	names := make([]string, 0, len(proxies))
	for _, p := range proxies {
		m, err := p.ToMap()
		if err != nil {
			return nil, fmt.Errorf("节点 %s 转换失败: %w", p.Name(), err)
		}
		items = append(items, orderedProxy(m))
		names = append(names, p.Name())
	}

	existing, _ := lookup(doc, "proxies").([]any)
	doc = set(doc, "proxies", append(existing, items...))

	groups, _ := lookup(doc, "proxy-groups").([]any)
	for i, g := range groups {
		group, ok := g.(yaml.MapSlice)
		if !ok {
			continue
		}
		group, err := fillGroup(group, names)
		if err != nil {
			return nil, err
		}
		groups[i] = group
	}
	if groups != nil {
		doc = set(doc, "proxy-groups", groups)
	}

	return yaml.MarshalWithOptions(doc, yaml.IndentSequence(true))
}

func fillGroup(group yaml.MapSlice, names []string) (yaml.MapSlice, error) {
	members, _ := lookup(group, "proxies").([]any)

	if f, ok := lookup(group, "filter").(string); ok {
		re, err := regexp.Compile(f)
		if err != nil {
			return nil, fmt.Errorf("策略组 %v 的 filter 无效: %w", lookup(group, "name"), err)
		}
		for _, n := range names {
			if re.MatchString(n) {
				members = append(members, n)
			}
		}
		group = remove(group, "filter")
	}

	if len(members) == 0 {
		if lookup(group, "use") != nil {
			return group, nil
		}
		members = []any{"DIRECT"}
	}
	return set(group, "proxies", members), nil
}

func orderedProxy(m map[string]any) yaml.MapSlice {
	out := make(yaml.MapSlice, 0, len(m))
	for _, k := range leadingKeys {
		if v, ok := m[k]; ok {
			out = append(out, yaml.MapItem{Key: k, Value: v})
			delete(m, k)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, yaml.MapItem{Key: k, Value: m[k]})
	}
	return out
}

func lookup(ms yaml.MapSlice, key string) any {
	for _, item := range ms {
		if k, ok := item.Key.(string); ok && k == key {
			return item.Value
		}
	}
	return nil
}

func set(ms yaml.MapSlice, key string, value any) yaml.MapSlice {
	for i, item := range ms {
		if k, ok := item.Key.(string); ok && k == key {
			ms[i].Value = value
			return ms
		}
	}
	return append(ms, yaml.MapItem{Key: key, Value: value})
}

func remove(ms yaml.MapSlice, key string) yaml.MapSlice {
	out := ms[:0]
	for _, item := range ms {
		if k, ok := item.Key.(string); ok && k == key {
			continue
		}
		out = append(out, item)
	}
	return out
}
