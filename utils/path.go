package utils

import (
	"log/slog"
	"os"
	"path/filepath"
)

// GetExecutablePath 程序所在目录，获取失败时返回当前目录
func GetExecutablePath() string {
	ex, err := os.Executable()
	if err != nil {
		slog.Error("获取程序路径失败", "error", err)
		return "."
	}
	return filepath.Dir(ex)
}

// ResolvePath 相对路径按 base 目录展开
func ResolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
