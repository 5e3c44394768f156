package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sinspired/clash-butler/app"
	"github.com/sinspired/clash-butler/utils"
)

// 构建时通过 -ldflags 注入
var (
	Version       = "dev"
	CurrentCommit = "unknown"
)

// 命令行参数
var (
	flagConfigPath = flag.String("f", "", "配置文件路径")
)

func main() {
	flag.Parse()

	// 读取配置前先使用默认日志设置
	utils.SetupLogger(utils.LogOptions{Level: "info"})
	slog.Info(fmt.Sprintf("当前版本: %s-%s", Version, CurrentCommit))

	application := app.New(fmt.Sprintf("%s-%s", Version, CurrentCommit), *flagConfigPath)
	if err := application.Initialize(); err != nil {
		if errors.Is(err, app.ErrConfigCreated) {
			os.Exit(0)
		}
		slog.Error(fmt.Sprintf("初始化失败: %v", err))
		os.Exit(1)
	}

	application.Run()
}
