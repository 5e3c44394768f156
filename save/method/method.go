// Package method 输出文件的保存方式
package method

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/sinspired/clash-butler/config"
	"github.com/sinspired/clash-butler/utils"
)

const (
	maxRetries    = 3
	retryInterval = 2 * time.Second
)

// Saver 保存单个输出文件
type Saver interface {
	Save(ctx context.Context, data []byte, filename string) error
}

// New 按 save-method 创建远程保存方式，local 返回 nil
func New(cfg *config.Config, sysProxy string) (Saver, error) {
	switch cfg.SaveMethod {
	case "", "local":
		return nil, nil
	case "webdav":
		if err := ValiWebDAVConfig(cfg); err != nil {
			return nil, err
		}
		return NewWebDAVUploader(cfg.WebDAVURL, cfg.WebDAVUsername, cfg.WebDAVPassword, sysProxy), nil
	case "s3":
		if err := ValiS3Config(cfg); err != nil {
			return nil, err
		}
		return NewS3Uploader(cfg)
	}
	return nil, fmt.Errorf("未知的保存方式: %s", cfg.SaveMethod)
}

// validateInput 验证输入参数
func validateInput(data []byte, filename string) error {
	if len(data) == 0 {
		return fmt.Errorf("数据为空")
	}
	if filename == "" {
		return fmt.Errorf("文件名不能为空")
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("文件名包含非法字符: %s", filename)
	}
	return nil
}

// httpClient 本地地址直连，否则有系统代理时走代理
func httpClient(target, sysProxy string) *http.Client {
	transport := &http.Transport{Proxy: nil}
	if u, err := url.Parse(target); err == nil && !utils.IsLocalHost(u.Hostname()) && sysProxy != "" {
		if pu, err := url.Parse(sysProxy); err == nil {
			transport.Proxy = http.ProxyURL(pu)
		}
	}
	return &http.Client{Transport: transport, Timeout: 30 * time.Second}
}

// retry 带重试机制执行上传
func retry(ctx context.Context, name string, fn func() error) error {
	var lastErr error
	for attempt := range maxRetries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryInterval):
			}
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error(fmt.Sprintf("%s上传失败(尝试 %d/%d) %v", name, attempt+1, maxRetries, lastErr))
	}
	return fmt.Errorf("%s上传失败，已重试%d次: %w", name, maxRetries, lastErr)
}
