package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Port 端口号，反序列化时同时接受数字和数字字符串
type Port uint16

func (p *Port) UnmarshalJSON(data []byte) error {
	n, err := looseInt(data)
	if err != nil {
		return fmt.Errorf("端口: %w", err)
	}
	if n < 0 || n > 65535 {
		return fmt.Errorf("端口超出范围: %d", n)
	}
	*p = Port(n)
	return nil
}

func parsePort(s string) (Port, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("端口 %q 无效: %w", s, err)
	}
	return Port(n), nil
}

// LooseInt 数字或数字字符串，空字符串视为 0
type LooseInt int

func (i *LooseInt) UnmarshalJSON(data []byte) error {
	n, err := looseInt(data)
	if err != nil {
		return err
	}
	*i = LooseInt(n)
	return nil
}

func looseInt(data []byte) (int64, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return 0, nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		data = []byte(s)
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return 0, fmt.Errorf("无法解析数字 %s", data)
	}
	if n, err := num.Int64(); err == nil {
		return n, nil
	}
	f, err := num.Float64()
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("无法解析整数 %s", data)
	}
	return int64(f), nil
}

// LooseString 字符串，同时接受数字与布尔值
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
	default:
		*s = LooseString(data)
	}
	return nil
}
