package save

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sinspired/clash-butler/config"
	proxyutils "github.com/sinspired/clash-butler/proxy"
	"github.com/sinspired/clash-butler/utils"
)

func TestSaveLocal(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{OutputDir: dir, SaveMethod: "local"}
	stats := &proxyutils.Stats{Sources: 1, Raw: 3, Unique: 3}

	cs, err := NewConfigSaver(cfg, testProxies(t, linkHK, linkUS, linkTJ), stats, "")
	if err != nil {
		t.Fatal(err)
	}
	cs.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local) }
	if err := cs.Save(context.Background()); err != nil {
		t.Fatal(err)
	}

	for _, name := range OutputFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("缺少输出文件 %s: %v", name, err)
		}
	}

	all, _ := os.ReadFile(filepath.Join(dir, AllFile))
	if got := proxyutils.ParseContent(all); len(got) != 3 {
		t.Errorf("all.yaml 节点数量 = %d", len(got))
	}

	b64, _ := os.ReadFile(filepath.Join(dir, Base64File))
	decoded, err := utils.Base64Decode(string(b64))
	if err != nil {
		t.Fatal(err)
	}
	// trojan 不支持编码为链接
	if lines := strings.Split(decoded, "\n"); len(lines) != 2 {
		t.Errorf("base64.txt 链接数量 = %d: %q", len(lines), decoded)
	}

	st, _ := os.ReadFile(filepath.Join(dir, StatsFile))
	if !strings.Contains(string(st), "unique: 3") {
		t.Errorf("stats.yaml = %s", st)
	}
	if _, err := os.Stat(filepath.Join(dir, "stats", "stats-20260102-030405.yaml")); err != nil {
		t.Errorf("缺少历史统计: %v", err)
	}

	// 第二次保存时 history.yaml 合并旧节点
	cs2, err := NewConfigSaver(cfg, testProxies(t, "ss://YWVzLTEyOC1nY206b3RoZXI=@9.9.9.9:1#new"), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := cs2.Save(context.Background()); err != nil {
		t.Fatal(err)
	}
	hist, _ := os.ReadFile(filepath.Join(dir, HistoryFile))
	if got := proxyutils.ParseContent(hist); len(got) != 4 {
		t.Errorf("history.yaml 节点数量 = %d, want 4", len(got))
	}
	all, _ = os.ReadFile(filepath.Join(dir, AllFile))
	if got := proxyutils.ParseContent(all); len(got) != 1 {
		t.Errorf("all.yaml 应只包含本次节点, got %d", len(got))
	}
}

func TestSaveEmptyKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.Config{OutputDir: dir}
	if err := SaveConfig(context.Background(), cfg, testProxies(t, linkHK), nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := SaveConfig(context.Background(), cfg, nil, nil, ""); err != nil {
		t.Fatal(err)
	}
	all, _ := os.ReadFile(filepath.Join(dir, AllFile))
	if got := proxyutils.ParseContent(all); len(got) != 1 {
		t.Errorf("节点为空时不应覆盖 all.yaml, got %d", len(got))
	}
}

func TestNewConfigSaverErrors(t *testing.T) {
	dir := t.TempDir()
	for _, cfg := range []*config.Config{
		{OutputDir: dir, SaveMethod: "ftp"},
		{OutputDir: dir, SaveMethod: "webdav"},
		{OutputDir: dir, SaveMethod: "s3", S3Endpoint: "minio:9000"},
		{OutputDir: dir, ClashTemplate: filepath.Join(dir, "missing.yaml")},
	} {
		if _, err := NewConfigSaver(cfg, nil, nil, ""); err == nil {
			t.Errorf("配置 %+v 应返回错误", cfg)
		}
	}
}
