package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/utils"
	"gopkg.in/yaml.v3"
)

// ErrConfigCreated 首次运行生成了默认配置，需要用户编辑后再启动
var ErrConfigCreated = errors.New("已创建默认配置文件")

// initConfigPath 初始化配置文件路径
func (app *App) initConfigPath() error {
	if app.configPath == "" {
		configDir := filepath.Join(utils.GetExecutablePath(), "config")

		if err := os.MkdirAll(configDir, 0o755); err != nil {
			return fmt.Errorf("创建配置目录失败: %w", err)
		}

		app.configPath = filepath.Join(configDir, "config.yaml")
	}
	return nil
}

// loadConfig 加载配置文件
func (app *App) loadConfig() error {
	yamlFile, err := os.ReadFile(app.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return app.createDefaultConfig()
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	newConfig, err := parseConfig(yamlFile)
	if err != nil {
		return err
	}
	if newConfig.APIKey == "" {
		newConfig.APIKey = app.config().APIKey
	}

	app.cfgMu.Lock()
	*config.GlobalConfig = *newConfig
	app.cfgMu.Unlock()

	slog.Info("配置文件读取成功")
	return nil
}

// parseConfig 在默认值基础上反序列化，避免旧配置残留
func parseConfig(data []byte) (*config.Config, error) {
	newConfig := config.Default()
	if err := yaml.Unmarshal(data, newConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if newConfig.APIKey == "" {
		newConfig.APIKey = os.Getenv("API_KEY")
	}
	return newConfig, nil
}

// createDefaultConfig 创建默认配置文件
func (app *App) createDefaultConfig() error {
	slog.Info("配置文件不存在，创建默认配置文件")

	if err := os.WriteFile(app.configPath, config.DefaultConfigTemplate, 0o644); err != nil {
		return fmt.Errorf("写入默认配置文件失败: %w", err)
	}

	slog.Info("默认配置文件创建成功")
	slog.Info(fmt.Sprintf("请编辑配置文件: %s", app.configPath))
	return ErrConfigCreated
}

// initConfigWatcher 初始化配置文件监听
func (app *App) initConfigWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}

	app.watcher = watcher
	absPath, _ := filepath.Abs(app.configPath)

	// 防抖定时器，编辑器先创建临时文件再覆盖，会产生两次write事件
	var debounceTimer *time.Timer
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != absPath && event.Name != app.configPath {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(100*time.Millisecond, app.reloadConfig)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error(fmt.Sprintf("配置文件监听错误: %v", err))
			}
		}
	}()

	// 监听目录，文件被替换后仍能收到事件
	if err := watcher.Add(filepath.Dir(app.configPath)); err != nil {
		return fmt.Errorf("添加配置文件监听失败: %w", err)
	}

	slog.Info("配置文件监听已启动")
	return nil
}

// reloadConfig 重新加载配置，调度设置变化时重建定时器
func (app *App) reloadConfig() {
	slog.Info("配置文件发生变化，正在重新加载")
	old := app.config()

	if err := app.loadConfig(); err != nil {
		slog.Error(fmt.Sprintf("重新加载配置文件失败: %v", err))
		return
	}

	cur := app.config()
	utils.SetLogLevel(cur.LogLevel)

	if old.CronExpression != cur.CronExpression || old.CheckInterval != cur.CheckInterval {
		app.timerMu.Lock()
		app.interval = checkInterval(cur)
		app.timerMu.Unlock()
		slog.Warn("定时设置发生变化，重新配置定时器")
		app.setTimer()
	}
	if old.ListenPort != cur.ListenPort {
		slog.Warn("监听端口变化需要重启程序后生效", "port", old.ListenPort)
	}
}
