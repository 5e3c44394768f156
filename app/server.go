package app

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/sinspired/clash-butler/check"
	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/save"
	"github.com/sinspired/clash-butler/save/method"
	"github.com/sinspired/clash-butler/utils"
)

const logTailLines = 200

// initHTTPServer 初始化HTTP服务器
func (app *App) initHTTPServer() error {
	if app.config().APIKey == "" {
		key := utils.GenerateRandomString(10)
		app.cfgMu.Lock()
		config.GlobalConfig.APIKey = key
		app.cfgMu.Unlock()
		slog.Warn("未设置api-key，已随机生成", "api-key", key)
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              app.config().ListenPort,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.httpServer = srv

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("HTTP服务器启动失败: %v", err))
		}
	}()
	slog.Info("HTTP服务器启动", "port", srv.Addr)
	slog.Info("订阅地址", "path", "http://ip:port/sub/"+save.ClashFile)

	return nil
}

// router 订阅文件公开访问，/api 需要 api-key
func (app *App) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/sub/:file", app.serveOutput)

	api := router.Group("/api")
	api.Use(app.authMiddleware())
	{
		api.GET("/nodes", app.getNodes)
		api.GET("/status", app.getStatus)
		api.POST("/trigger", app.triggerCheckHandler)
		api.POST("/abort", app.abortHandler)
		api.GET("/config", app.getConfig)
		api.POST("/config", app.updateConfig)
		api.GET("/logs", app.getLogs)
		api.GET("/version", app.getVersion)
	}
	return router
}

// requestLogger 用 slog 记录请求，级别低于 debug 时不输出
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http请求",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"client", c.ClientIP(),
			"cost", time.Since(start).Truncate(time.Microsecond),
		)
	}
}

// authMiddleware API认证中间件，支持 X-API-Key 头或 key 参数
func (app *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("key")
		}
		want := app.config().APIKey
		if want == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的API密钥"})
			return
		}
		c.Next()
	}
}

// serveOutput 只允许访问输出文件列表中的文件
func (app *App) serveOutput(c *gin.Context) {
	name := c.Param("file")
	if !slices.Contains(save.OutputFiles, name) {
		c.String(http.StatusNotFound, "文件不存在")
		return
	}
	data, err := method.NewLocalSaver(app.config().OutputDir).Read(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.String(http.StatusNotFound, "文件尚未生成")
			return
		}
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, outputContentType(name), data)
}

func outputContentType(name string) string {
	if name == save.Base64File {
		return "text/plain; charset=utf-8"
	}
	return "text/yaml; charset=utf-8"
}

// getNodes 上一轮处理得到的节点
func (app *App) getNodes(c *gin.Context) {
	last := app.lastResult()
	nodes := make([]map[string]any, 0, len(last.Proxies))
	for _, p := range last.Proxies {
		m, err := p.ToMap()
		if err != nil {
			continue
		}
		nodes = append(nodes, m)
	}
	c.JSON(http.StatusOK, gin.H{
		"count": len(nodes),
		"nodes": nodes,
	})
}

// getStatus 获取应用状态
func (app *App) getStatus(c *gin.Context) {
	last := app.lastResult()
	lastRun := gin.H{}
	if !last.Time.IsZero() {
		lastRun = gin.H{
			"time":     last.Time.Format(time.DateTime),
			"duration": last.Duration.Truncate(time.Millisecond).String(),
			"nodes":    len(last.Proxies),
			"stats":    last.Stats,
			"error":    last.Err,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"running":  app.checking.Load(),
		"progress": check.Current.Snapshot(),
		"traffic":  units.HumanSize(float64(check.TotalBytes.Load())),
		"memory":   processMemory(),
		"lastRun":  lastRun,
	})
}

// processMemory 当前进程常驻内存
func processMemory() string {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ""
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return ""
	}
	return units.HumanSize(float64(mem.RSS))
}

// triggerCheckHandler 手动触发
func (app *App) triggerCheckHandler(c *gin.Context) {
	if !app.TriggerCheck() {
		c.JSON(http.StatusConflict, gin.H{"error": "已有任务正在进行"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "已触发"})
}

// abortHandler 结束正在进行的一轮处理
func (app *App) abortHandler(c *gin.Context) {
	if !app.checking.Load() {
		c.JSON(http.StatusOK, gin.H{"message": "当前没有进行中的任务"})
		return
	}
	app.abortRun()
	c.JSON(http.StatusOK, gin.H{"message": "已停止本轮处理"})
}

// getConfig 获取配置文件内容
func (app *App) getConfig(c *gin.Context) {
	configData, err := os.ReadFile(app.configPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("读取配置文件失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": string(configData)})
}

// updateConfig 更新配置文件内容，由文件监听负责重新加载
func (app *App) updateConfig(c *gin.Context) {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}
	if _, err := parseConfig([]byte(req.Content)); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := os.WriteFile(app.configPath, []byte(req.Content), 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("保存配置文件失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "配置已更新"})
}

// getLogs 日志文件最后若干行，未配置日志文件时返回空
func (app *App) getLogs(c *gin.Context) {
	logFile := app.config().LogFile
	if logFile == "" {
		c.JSON(http.StatusOK, gin.H{"logs": []string{}})
		return
	}
	lines, err := readLastNLines(utils.ResolvePath(utils.GetExecutablePath(), logFile), logTailLines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusOK, gin.H{"logs": []string{}})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("读取日志失败: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": lines})
}

// getVersion 获取版本号
func (app *App) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": app.version})
}

func readLastNLines(filePath string, n int) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	ring := make([]string, n)
	count := 0

	// 环形缓冲区
	for scanner.Scan() {
		ring[count%n] = scanner.Text()
		count++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if count <= n {
		return ring[:count], nil
	}

	// 从最旧到最新
	start := count % n
	return append(ring[start:], ring[:start]...), nil
}
