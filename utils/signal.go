package utils

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

var interrupted atomic.Bool

// ShutdownHook 收到退出信号时调用，BeforeExitHook 在 os.Exit 前调用
var (
	BeforeExitHook func()
	ShutdownHook   func()
)

// SetupSignalHandler 处理 SIGINT/SIGTERM/SIGHUP
//
// 处理流程进行中时，第一次 Ctrl+C 只调用 abortRun 结束本轮处理，程序继续运行；
// 再次收到信号则关闭程序。SIGHUP 只结束本轮处理。
// 返回的通道在程序需要退出时关闭。
func SetupSignalHandler(abortRun func(), running *atomic.Bool) <-chan struct{} {
	stop := make(chan struct{})

	exitCh := make(chan os.Signal, 1)
	signal.Notify(exitCh, syscall.SIGINT, syscall.SIGTERM)

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)

	go func() {
		for sig := range exitCh {
			slog.Debug("收到中断信号", "sig", sig)

			if running.Load() && interrupted.CompareAndSwap(false, true) {
				abortRun()
				slog.Warn("已停止本轮处理，再次按 Ctrl+C 将退出程序")
				continue
			}

			if ShutdownHook != nil {
				ShutdownHook()
			}
			select {
			case <-stop:
			default:
				close(stop)
			}

			// 5s 内未正常退出则强制退出
			time.AfterFunc(5*time.Second, func() {
				if BeforeExitHook != nil {
					BeforeExitHook()
				}
				os.Exit(0)
			})
		}
	}()

	go func() {
		for sig := range hupCh {
			slog.Info("收到 HUP 信号", "sig", sig)
			if running.Load() {
				abortRun()
			}
		}
	}()

	return stop
}

// ResetInterrupt 一轮处理结束后调用，下一轮的 Ctrl+C 重新按首次处理
func ResetInterrupt() {
	interrupted.Store(false)
}
