package utils

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidUTF8 解码结果不是合法的 UTF-8 文本
var ErrInvalidUTF8 = errors.New("base64 解码结果不是有效的 UTF-8")

var urlSafeReplacer = strings.NewReplacer("-", "+", "_", "/")

// Base64Decode 宽松的 base64 解码
// 同时兼容标准与 URL 安全字母表，缺失的填充会被补齐，中间的空白会被忽略
func Base64Decode(text string) (string, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	s = urlSafeReplacer.Replace(strings.TrimRight(s, "="))
	if s == "" {
		return "", nil
	}
	if len(s)%4 == 1 {
		return "", fmt.Errorf("base64 长度非法: %d", len(s))
	}
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}

	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("base64 解码失败: %w", err)
	}
	if !utf8.Valid(decoded) {
		return "", ErrInvalidUTF8
	}
	return string(decoded), nil
}

// Base64DecodeOr 解码失败时原样返回，调用方可把输入当作明文继续处理
func Base64DecodeOr(text string) string {
	decoded, err := Base64Decode(text)
	if err != nil {
		return text
	}
	return decoded
}

func Base64Encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}
