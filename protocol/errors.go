// Package protocol 实现各类代理分享链接的编解码，以及统一的 Proxy 抽象
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrLinkEncodeUnsupported 该协议暂不支持导出分享链接
	ErrLinkEncodeUnsupported = errors.New("暂不支持导出分享链接")
	// ErrUnknownKind 无法识别的协议类型
	ErrUnknownKind = errors.New("未知的协议类型")
)

const maxLinkInError = 64

// UnsupportedLinkError 链接无法被解析或编码
type UnsupportedLinkError struct {
	Link   string
	Reason string
	Err    error
}

func (e *UnsupportedLinkError) Error() string {
	msg := "不支持的链接格式: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Link != "" {
		link := []rune(e.Link)
		if len(link) > maxLinkInError {
			link = append(link[:maxLinkInError], []rune("...")...)
		}
		msg += fmt.Sprintf(" (%s)", string(link))
	}
	return msg
}

func (e *UnsupportedLinkError) Unwrap() error {
	return e.Err
}

func unsupported(link, reason string, err error) *UnsupportedLinkError {
	return &UnsupportedLinkError{Link: link, Reason: reason, Err: err}
}
