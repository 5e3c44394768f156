// Package save 生成并保存输出文件
package save

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/protocol"
	proxyutils "github.com/sinspired/clash-butler/proxy"
	"github.com/sinspired/clash-butler/save/method"
	"github.com/sinspired/clash-butler/utils"
)

// 输出文件名
const (
	AllFile     = "all.yaml"
	ClashFile   = "clash.yaml"
	Base64File  = "base64.txt"
	HistoryFile = "history.yaml"
	StatsFile   = "stats.yaml"
)

// 保留的历史统计数量
const statsKeep = 30

// OutputFiles 对外提供下载的文件
var OutputFiles = []string{AllFile, ClashFile, Base64File, HistoryFile, StatsFile}

// output 定义单个输出文件的生成方式
type output struct {
	Name   string
	Render func(cs *ConfigSaver) ([]byte, error)
	// Nodes 为 true 时节点为空则跳过，避免覆盖上一次的结果
	Nodes bool
}

var outputs = []output{
	{Name: AllFile, Render: (*ConfigSaver).renderAll, Nodes: true},
	{Name: ClashFile, Render: (*ConfigSaver).renderClash, Nodes: true},
	{Name: Base64File, Render: (*ConfigSaver).renderBase64, Nodes: true},
	{Name: HistoryFile, Render: (*ConfigSaver).renderHistory, Nodes: true},
	{Name: StatsFile, Render: (*ConfigSaver).renderStats},
}

// ConfigSaver 处理配置保存的结构体
type ConfigSaver struct {
	proxies  []protocol.Proxy
	stats    any
	template []byte

	local  *method.LocalSaver
	remote method.Saver
	hist   *method.StatsSaver
	now    func() time.Time
}

// NewConfigSaver 创建保存器，save-method 不是 local 时额外上传到远程
func NewConfigSaver(cfg *config.Config, proxies []protocol.Proxy, stats any, sysProxy string) (*ConfigSaver, error) {
	tpl, err := LoadTemplate(cfg.ClashTemplate)
	if err != nil {
		return nil, err
	}
	remote, err := method.New(cfg, sysProxy)
	if err != nil {
		return nil, fmt.Errorf("%s配置不完整: %w", cfg.SaveMethod, err)
	}
	local := method.NewLocalSaver(cfg.OutputDir)
	return &ConfigSaver{
		proxies:  proxies,
		stats:    stats,
		template: tpl,
		local:    local,
		remote:   remote,
		hist:     method.NewStatsSaver(local.OutputPath, statsKeep),
		now:      time.Now,
	}, nil
}

// LoadTemplate 读取 clash 模板，未配置时使用内置模板
func LoadTemplate(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultClashTemplate, nil
	}
	data, err := os.ReadFile(utils.ResolvePath(utils.GetExecutablePath(), path))
	if err != nil {
		return nil, fmt.Errorf("读取 clash 模板失败: %w", err)
	}
	return data, nil
}

// SaveConfig 保存配置的入口函数
func SaveConfig(ctx context.Context, cfg *config.Config, proxies []protocol.Proxy, stats any, sysProxy string) error {
	saver, err := NewConfigSaver(cfg, proxies, stats, sysProxy)
	if err != nil {
		return err
	}
	return saver.Save(ctx)
}

// Save 所有文件先保存到本地，再上传到远程
func (cs *ConfigSaver) Save(ctx context.Context) error {
	var errs []error
	for _, o := range outputs {
		if o.Nodes && len(cs.proxies) == 0 {
			slog.Warn("节点为空，跳过保存", "file", o.Name)
			continue
		}
		data, err := o.Render(cs)
		if err != nil {
			errs = append(errs, fmt.Errorf("生成 %s 失败: %w", o.Name, err))
			continue
		}
		if err := cs.local.Save(ctx, data, o.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		if cs.remote != nil {
			if err := cs.remote.Save(ctx, data, o.Name); err != nil {
				errs = append(errs, err)
			}
		}
		if o.Name == StatsFile {
			if _, err := cs.hist.Save(data, cs.now(), ""); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) == 0 {
		slog.Info("保存完成", "节点数量", len(cs.proxies), "路径", cs.local.OutputPath)
	}
	return errors.Join(errs...)
}

// OutputPath 本地输出目录
func (cs *ConfigSaver) OutputPath() string {
	return cs.local.OutputPath
}

func marshalProxies(proxies []protocol.Proxy) ([]byte, error) {
	items := make([]any, 0, len(proxies))
	for _, p := range proxies {
		m, err := p.ToMap()
		if err != nil {
			return nil, err
		}
		items = append(items, orderedProxy(m))
	}
	return yaml.MarshalWithOptions(yaml.MapSlice{{Key: "proxies", Value: items}}, yaml.IndentSequence(true))
}

func (cs *ConfigSaver) renderAll() ([]byte, error) {
	return marshalProxies(cs.proxies)
}

func (cs *ConfigSaver) renderClash() ([]byte, error) {
	return RenderClash(cs.template, cs.proxies)
}

// renderBase64 只包含可以编码为链接的节点
func (cs *ConfigSaver) renderBase64() ([]byte, error) {
	links := make([]string, 0, len(cs.proxies))
	for _, p := range cs.proxies {
		link, err := p.Link()
		if err != nil {
			continue
		}
		links = append(links, link)
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("没有可编码为链接的节点")
	}
	return []byte(utils.Base64Encode(strings.Join(links, "\n"))), nil
}

// renderHistory 合并已有的 history.yaml，新节点排在后面
func (cs *ConfigSaver) renderHistory() ([]byte, error) {
	var existing []protocol.Proxy
	if data, err := cs.local.Read(HistoryFile); err == nil {
		existing = proxyutils.ParseContent(data)
	}
	merged := make([]protocol.Proxy, 0, len(existing)+len(cs.proxies))
	merged = append(merged, existing...)
	for _, p := range cs.proxies {
		merged = append(merged, p.Clone())
	}
	return marshalProxies(proxyutils.ExcludeDuplicates(merged))
}

func (cs *ConfigSaver) renderStats() ([]byte, error) {
	return yaml.Marshal(map[string]any{
		"time":    cs.now().Format(time.DateTime),
		"proxies": len(cs.proxies),
		"stats":   cs.stats,
	})
}
