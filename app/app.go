// Package app 应用程序主入口
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sinspired/clash-butler/check"
	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/protocol"
	proxyutils "github.com/sinspired/clash-butler/proxy"
	"github.com/sinspired/clash-butler/save"
	"github.com/sinspired/clash-butler/utils"
)

// App 结构体用于管理应用程序状态
type App struct {
	ctx        context.Context
	cancel     context.CancelFunc
	configPath string
	interval   int
	watcher    *fsnotify.Watcher
	checkChan  chan struct{} // 触发处理的通道
	checking   atomic.Bool   // 处理状态标志
	ticker     *time.Ticker
	done       chan struct{} // 用于结束ticker goroutine的信号
	cron       *cron.Cron    // crontab调度器
	version    string
	httpServer *http.Server
	stopCh     <-chan struct{}
	logCloser  io.Closer

	// 当前一轮处理的取消函数
	runMu     sync.Mutex
	runCancel context.CancelFunc

	// 配置热重载与处理流程并发读写
	cfgMu sync.RWMutex
	// 保护 ticker、cron、done
	timerMu sync.Mutex

	lastMu sync.RWMutex
	last   lastRun
}

// lastRun 上一轮处理的结果，供 api 读取
type lastRun struct {
	Time     time.Time
	Duration time.Duration
	Stats    *proxyutils.Stats
	Proxies  []protocol.Proxy
	Err      string
}

// New 创建新的应用实例
func New(version string, configPath string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		ctx:        ctx,
		cancel:     cancel,
		configPath: configPath,
		checkChan:  make(chan struct{}, 1),
		done:       make(chan struct{}),
		version:    version,
	}
}

// Initialize 初始化应用程序
func (app *App) Initialize() error {
	// 初始化配置文件路径
	if err := app.initConfigPath(); err != nil {
		return fmt.Errorf("初始化配置文件路径失败: %w", err)
	}

	// 加载配置文件
	if err := app.loadConfig(); err != nil {
		return fmt.Errorf("加载配置文件失败: %w", err)
	}
	cfg := app.config()
	app.logCloser = utils.SetupLogger(utils.LogOptions{
		Level:      cfg.LogLevel,
		File:       utils.ResolvePath(utils.GetExecutablePath(), cfg.LogFile),
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
	})

	// 初始化配置文件监听
	if err := app.initConfigWatcher(); err != nil {
		return fmt.Errorf("初始化配置文件监听失败: %w", err)
	}

	app.interval = checkInterval(app.config())

	if app.config().ListenPort != "" {
		if err := app.initHTTPServer(); err != nil {
			return fmt.Errorf("初始化HTTP服务器失败: %w", err)
		}
	}

	// 第二次 Ctrl+C 立即调用
	utils.ShutdownHook = func() {
		slog.Warn("立即退出程序")
		if err := app.Shutdown(); err != nil {
			slog.Error("关闭应用失败", "err", err)
		} else {
			os.Exit(0)
		}
	}
	utils.BeforeExitHook = func() {
		slog.Warn("程序未正常退出，强制停止")
	}

	app.stopCh = utils.SetupSignalHandler(app.abortRun, &app.checking)

	return nil
}

// Run 运行应用程序主循环
func (app *App) Run() {
	app.setTimer()

	if app.config().CronExpression != "" {
		slog.Warn("使用cron表达式，首次启动不立即执行")
	} else {
		go app.triggerCheck()
	}

	go func() {
		for range app.checkChan {
			go app.triggerCheck()
		}
	}()

	// 阻塞等待 stopCh 被关闭
	<-app.stopCh
	if err := app.Shutdown(); err != nil {
		slog.Error("关闭应用失败", "err", err)
	}
}

// config 当前配置的副本
func (app *App) config() config.Config {
	app.cfgMu.RLock()
	defer app.cfgMu.RUnlock()
	return *config.GlobalConfig
}

func checkInterval(cfg config.Config) int {
	if cfg.CheckInterval <= 0 {
		return 1
	}
	return cfg.CheckInterval
}

// setTimer 根据配置设置定时器
func (app *App) setTimer() {
	app.timerMu.Lock()
	defer app.timerMu.Unlock()

	// 停止现有定时器
	if app.ticker != nil {
		// 先发送停止信号，防止被=nil后panic
		close(app.done)
		app.done = make(chan struct{})
		app.ticker.Stop()
		app.ticker = nil
	}

	if app.cron != nil {
		app.cron.Stop()
		app.cron = nil
	}

	expr := app.config().CronExpression
	if expr == "" {
		app.useIntervalTimer()
		return
	}

	slog.Info(fmt.Sprintf("使用cron表达式: %s", expr))
	app.cron = cron.New()
	if _, err := app.cron.AddFunc(expr, app.triggerCheck); err != nil {
		app.cron = nil
		slog.Error(fmt.Sprintf("cron表达式 '%s' 解析失败: %v，将使用检查间隔时间", expr, err))
		app.useIntervalTimer()
		return
	}
	app.cron.Start()
}

// useIntervalTimer 使用间隔时间模式运行
func (app *App) useIntervalTimer() {
	ticker := time.NewTicker(time.Duration(app.interval) * time.Minute)
	app.ticker = ticker
	done := app.done
	go func() {
		for {
			select {
			case <-ticker.C:
				app.triggerCheck()
			case <-done:
				return
			}
		}
	}()
}

// TriggerCheck 供外部调用的触发方法，正在处理时忽略
func (app *App) TriggerCheck() bool {
	if app.checking.Load() {
		slog.Warn("已有任务正在进行，忽略本次触发")
		return false
	}
	select {
	case app.checkChan <- struct{}{}:
		slog.Info("手动触发任务")
		return true
	default:
		slog.Warn("已有任务正在进行，忽略本次触发")
		return false
	}
}

// abortRun 结束正在进行的一轮处理
func (app *App) abortRun() {
	app.runMu.Lock()
	defer app.runMu.Unlock()
	if app.runCancel != nil {
		app.runCancel()
	}
}

// triggerCheck 内部处理方法
func (app *App) triggerCheck() {
	if !app.checking.CompareAndSwap(false, true) {
		slog.Warn("已有任务正在进行，跳过本次执行")
		return
	}
	defer app.checking.Store(false)
	defer utils.ResetInterrupt()

	ctx, cancel := context.WithCancel(app.ctx)
	app.runMu.Lock()
	app.runCancel = cancel
	app.runMu.Unlock()
	defer func() {
		app.runMu.Lock()
		app.runCancel = nil
		app.runMu.Unlock()
		cancel()
	}()

	if err := app.process(ctx); err != nil {
		slog.Error(fmt.Sprintf("处理订阅失败: %v", err))
	}

	app.timerMu.Lock()
	defer app.timerMu.Unlock()
	if app.ticker != nil {
		app.ticker.Reset(time.Duration(app.interval) * time.Minute)
		nextCheck := time.Now().Add(time.Duration(app.interval) * time.Minute)
		slog.Info(fmt.Sprintf("下次执行时间: %s", nextCheck.Format(time.DateTime)))
	} else if app.cron != nil {
		if entries := app.cron.Entries(); len(entries) > 0 {
			slog.Info(fmt.Sprintf("下次执行时间: %s", entries[0].Next.Format(time.DateTime)))
		}
	}
	debug.FreeOSMemory()
}

// process 获取订阅、检测、重命名并保存
func (app *App) process(ctx context.Context) (err error) {
	cfg := app.config()
	start := time.Now()

	var (
		nodes []protocol.Proxy
		stats *proxyutils.Stats
	)
	defer func() {
		app.setLast(start, stats, nodes, err)
	}()

	nodes, stats, err = proxyutils.GetProxies(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("获取订阅失败: %w", err)
	}
	slog.Info("订阅获取完成", "节点", len(nodes))

	var geo *proxyutils.GeoDB
	if cfg.RenameNode && cfg.MaxMindDBPath != "" {
		geo, err = proxyutils.OpenGeoDB(utils.ResolvePath(utils.GetExecutablePath(), cfg.MaxMindDBPath))
		if err != nil {
			slog.Warn("打开 maxmind 数据库失败，仅使用在线查询", "error", err)
			geo, err = nil, nil
		} else {
			defer geo.Close()
		}
	}

	var results []check.Result
	if cfg.AliveCheck && len(nodes) > 0 {
		pc := check.NewProxyChecker(&cfg)
		if cfg.RenameNode {
			pc.Locate = check.ExitLocator(geo.Reader())
		}
		results, err = pc.Run(ctx, nodes)
		if err != nil {
			nodes = nil
			return fmt.Errorf("存活检测中断: %w", err)
		}
		nodes = check.Proxies(results)
	}

	if cfg.RenameNode {
		var fallback proxyutils.GeoLookup
		if geo != nil {
			fallback = geo.Lookup(ctx)
		}
		nodes = proxyutils.RenameByPattern(nodes, cfg.RenamePattern, check.GeoLookup(results, fallback))
	}
	nodes = proxyutils.AddPrefix(nodes, cfg.NodePrefix)

	if err := ctx.Err(); err != nil {
		return err
	}
	sysProxy := ""
	if stats != nil {
		sysProxy = stats.SysProxy
	}
	if err := save.SaveConfig(ctx, &cfg, nodes, stats, sysProxy); err != nil {
		return fmt.Errorf("保存结果失败: %w", err)
	}

	slog.Info("处理完成", "节点", len(nodes), "耗时", time.Since(start).Truncate(time.Millisecond))
	return nil
}

func (app *App) setLast(start time.Time, stats *proxyutils.Stats, nodes []protocol.Proxy, err error) {
	r := lastRun{
		Time:     time.Now(),
		Duration: time.Since(start),
		Stats:    stats,
		Proxies:  nodes,
	}
	if err != nil {
		r.Err = err.Error()
	}
	app.lastMu.Lock()
	app.last = r
	app.lastMu.Unlock()
}

func (app *App) lastResult() lastRun {
	app.lastMu.RLock()
	defer app.lastMu.RUnlock()
	return app.last
}

// Shutdown 尝试优雅关闭所有子服务与资源
func (app *App) Shutdown() error {
	slog.Debug("开始关闭应用...")

	var errs []error

	app.abortRun()
	if app.cancel != nil {
		app.cancel()
	}

	app.timerMu.Lock()
	if app.ticker != nil {
		app.ticker.Stop()
	}
	if app.cron != nil {
		app.cron.Stop()
	}
	select {
	case <-app.done:
	default:
		close(app.done)
	}
	app.timerMu.Unlock()

	if app.watcher != nil {
		if err := app.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if app.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("关闭 HTTP 服务器失败: %w", err))
		} else {
			slog.Info("HTTP 服务器关闭", "port", strings.TrimPrefix(app.config().ListenPort, ":"))
		}
	}

	slog.Info("应用已关闭")
	if app.logCloser != nil {
		if err := app.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
