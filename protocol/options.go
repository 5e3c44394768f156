package protocol

import "maps"

// WSOptions 对应 ws-opts
type WSOptions struct {
	Path    string            `json:"path,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (o *WSOptions) clone() *WSOptions {
	if o == nil {
		return nil
	}
	c := *o
	c.Headers = maps.Clone(o.Headers)
	return &c
}

// newWSOptions host 为空时不写入 Host 头
func newWSOptions(path, host string) *WSOptions {
	o := &WSOptions{Path: path}
	if host != "" {
		o.Headers = map[string]string{"Host": host}
	}
	return o
}

// GrpcOptions 对应 grpc-opts
type GrpcOptions struct {
	ServiceName string `json:"grpc-service-name,omitempty"`
}

func (o *GrpcOptions) clone() *GrpcOptions {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// RealityOptions 对应 reality-opts
type RealityOptions struct {
	PublicKey string `json:"public-key,omitempty"`
	ShortID   string `json:"short-id,omitempty"`
}

func (o *RealityOptions) clone() *RealityOptions {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func boolPtr(b bool) *bool {
	return &b
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	return boolPtr(*b)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// cloneAny 深拷贝 JSON 风格的 map/slice
func cloneAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneAny(item)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}
