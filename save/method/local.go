package method

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sinspired/clash-butler/utils"
)

const (
	outputDirName = "output"
	fileMode      = 0o644
	dirMode       = 0o755
)

// LocalSaver 保存到本地输出目录
type LocalSaver struct {
	OutputPath string
}

// NewLocalSaver 相对路径按程序所在目录展开，为空时使用 output
func NewLocalSaver(outputDir string) *LocalSaver {
	if outputDir == "" {
		outputDir = outputDirName
	}
	return &LocalSaver{OutputPath: utils.ResolvePath(utils.GetExecutablePath(), outputDir)}
}

// Save 先写临时文件再重命名，读取方不会看到写了一半的文件
func (ls *LocalSaver) Save(_ context.Context, data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}
	if err := os.MkdirAll(ls.OutputPath, dirMode); err != nil {
		return fmt.Errorf("创建目录失败 [%s]: %w", ls.OutputPath, err)
	}

	path := filepath.Join(ls.OutputPath, filename)
	tmp, err := os.CreateTemp(ls.OutputPath, "."+filename+".*")
	if err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	if err := os.Chmod(tmp.Name(), fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("写入文件失败 [%s]: %w", filename, err)
	}
	slog.Debug("保存文件成功", "路径", path)
	return nil
}

// Read 读取输出目录下的文件
func (ls *LocalSaver) Read(filename string) ([]byte, error) {
	if filepath.Base(filename) != filename {
		return nil, fmt.Errorf("文件名包含非法字符: %s", filename)
	}
	return os.ReadFile(filepath.Join(ls.OutputPath, filename))
}
