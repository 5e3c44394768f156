package method

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// StatsSaver 在输出目录的 stats 子目录中保留每次运行的统计
type StatsSaver struct {
	StatsPath string
	// Keep 保留的历史文件数量，<=0 表示不清理
	Keep int
}

// NewStatsSaver 创建统计保存器
func NewStatsSaver(outputPath string, keep int) *StatsSaver {
	return &StatsSaver{StatsPath: filepath.Join(outputPath, "stats"), Keep: keep}
}

// Save 保存为 stats-YYYYmmdd-HHMMSS.yaml，并清理多余的历史文件
func (ss *StatsSaver) Save(data []byte, at time.Time, message string) (string, error) {
	filename := "stats-" + at.Format("20060102-150405") + ".yaml"
	if err := validateInput(data, filename); err != nil {
		return "", err
	}
	if err := os.MkdirAll(ss.StatsPath, dirMode); err != nil {
		return "", fmt.Errorf("创建目录失败 [%s]: %w", ss.StatsPath, err)
	}

	path := filepath.Join(ss.StatsPath, filename)
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return "", fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	if message == "" {
		message = "保存订阅统计成功"
	}
	slog.Info(message, "路径", path)

	ss.prune()
	return path, nil
}

// List 按时间从新到旧返回历史统计文件名
func (ss *StatsSaver) List() ([]string, error) {
	entries, err := os.ReadDir(ss.StatsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "stats-") && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func (ss *StatsSaver) prune() {
	if ss.Keep <= 0 {
		return
	}
	names, err := ss.List()
	if err != nil || len(names) <= ss.Keep {
		return
	}
	for _, name := range names[ss.Keep:] {
		if err := os.Remove(filepath.Join(ss.StatsPath, name)); err != nil {
			slog.Debug("清理历史统计失败", "file", name, "error", err)
		}
	}
}
