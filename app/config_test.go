package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sinspired/clash-butler/config"
)

func TestParseConfigKeepsDefaults(t *testing.T) {
	t.Setenv("API_KEY", "")

	cfg, err := parseConfig([]byte("sub-urls:\n  - https://example.com/sub\nalive-check: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.SubUrls) != 1 || !cfg.AliveCheck {
		t.Errorf("解析结果不正确: %+v", cfg)
	}
	if cfg.AliveTimeout != 5000 || cfg.OutputDir != "output" {
		t.Errorf("默认值丢失: timeout=%d output=%q", cfg.AliveTimeout, cfg.OutputDir)
	}
}

func TestParseConfigEnvAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "from-env")

	cfg, err := parseConfig([]byte("log-level: debug\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
}

func TestParseConfigExample(t *testing.T) {
	t.Setenv("API_KEY", "")

	cfg, err := parseConfig(config.DefaultConfigTemplate)
	if err != nil {
		t.Fatalf("示例配置无法解析: %v", err)
	}
	if cfg.SaveMethod != "local" || cfg.CheckInterval != 720 || cfg.ListenPort != ":8199" {
		t.Errorf("示例配置内容不符: %+v", cfg)
	}
}

func TestLoadConfigCreatesDefault(t *testing.T) {
	a := newTestApp(t)

	err := a.loadConfig()
	if !errors.Is(err, ErrConfigCreated) {
		t.Fatalf("err = %v, want ErrConfigCreated", err)
	}
	data, err := os.ReadFile(a.configPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(config.DefaultConfigTemplate) {
		t.Error("写入的不是默认配置")
	}
}

func TestLoadConfigKeepsGeneratedAPIKey(t *testing.T) {
	t.Setenv("API_KEY", "")
	a := newTestApp(t)
	config.GlobalConfig.APIKey = "generated"

	if err := os.WriteFile(a.configPath, []byte("check-interval: 30\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := a.loadConfig(); err != nil {
		t.Fatal(err)
	}
	if config.GlobalConfig.CheckInterval != 30 {
		t.Errorf("CheckInterval = %d", config.GlobalConfig.CheckInterval)
	}
	if config.GlobalConfig.APIKey != "generated" {
		t.Errorf("APIKey = %q", config.GlobalConfig.APIKey)
	}
}

func TestInitConfigPath(t *testing.T) {
	a := New("test", filepath.Join(t.TempDir(), "custom.yaml"))
	if err := a.initConfigPath(); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(a.configPath) != "custom.yaml" {
		t.Errorf("configPath = %q", a.configPath)
	}
}
