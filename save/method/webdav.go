package method

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sinspired/clash-butler/config"
)

// WebDAVUploader 处理 WebDAV 上传的结构体
type WebDAVUploader struct {
	client   *http.Client
	baseURL  string
	username string
	password string
}

// NewWebDAVUploader 创建新的 WebDAV 上传器
func NewWebDAVUploader(baseURL, username, password, sysProxy string) *WebDAVUploader {
	return &WebDAVUploader{
		client:   httpClient(baseURL, sysProxy),
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// ValiWebDAVConfig 验证WebDAV配置
func ValiWebDAVConfig(cfg *config.Config) error {
	if cfg.WebDAVURL == "" {
		return fmt.Errorf("webdav URL未配置")
	}
	if cfg.WebDAVUsername == "" {
		return fmt.Errorf("webdav 用户名未配置")
	}
	if cfg.WebDAVPassword == "" {
		return fmt.Errorf("webdav 密码未配置")
	}
	return nil
}

// Save 上传单个文件
func (w *WebDAVUploader) Save(ctx context.Context, data []byte, filename string) error {
	if err := validateInput(data, filename); err != nil {
		return err
	}
	if w.baseURL == "" {
		return fmt.Errorf("webdav URL未配置")
	}

	err := retry(ctx, "webdav", func() error { return w.doUpload(ctx, data, filename) })
	if err == nil {
		slog.Info("webdav上传成功", "filename", filename)
	}
	return err
}

// doUpload 执行单次上传
func (w *WebDAVUploader) doUpload(ctx context.Context, data []byte, filename string) error {
	target := strings.TrimSuffix(w.baseURL, "/") + "/" + filename
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.SetBasicAuth(w.username, w.password)
	req.Header.Set("Content-Type", contentType(filename))

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("读取响应失败(状态码: %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("上传失败(状态码: %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func contentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".yaml"), strings.HasSuffix(filename, ".yml"):
		return "application/x-yaml"
	case strings.HasSuffix(filename, ".json"):
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}
