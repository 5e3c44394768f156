package check

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/metacubex/mihomo/adapter"
	"github.com/metacubex/mihomo/constant"
	"github.com/sinspired/clash-butler/protocol"
)

// TotalBytes 所有检测累计读取的字节数
var TotalBytes atomic.Uint64

// ProxyClient 通过单个节点发起请求的 http 客户端
type ProxyClient struct {
	*http.Client
	proxy     constant.Proxy
	transport *http.Transport
	bytesRead atomic.Uint64
	cancel    context.CancelFunc
}

// CreateClient 使用 mihomo 为节点创建独立的 http 客户端
func CreateClient(p protocol.Proxy, timeout time.Duration) (*ProxyClient, error) {
	mapping, err := p.ToMap()
	if err != nil {
		return nil, err
	}
	mihomoProxy, err := adapter.ParseProxy(mapping)
	if err != nil {
		return nil, fmt.Errorf("底层mihomo创建代理失败: %w", err)
	}

	// Close 时取消所有挂起的拨号
	clientCtx, cancel := context.WithCancel(context.Background())
	pc := &ProxyClient{proxy: mihomoProxy, cancel: cancel}

	pc.transport = &http.Transport{
		DialContext: func(reqCtx context.Context, network, addr string) (net.Conn, error) {
			ctx, stop := context.WithCancel(reqCtx)
			defer stop()
			go func() {
				select {
				case <-clientCtx.Done():
					stop()
				case <-ctx.Done():
				}
			}()

			host, portStr, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("端口无效: %s", portStr)
			}
			conn, err := mihomoProxy.DialContext(ctx, &constant.Metadata{Host: host, DstPort: uint16(port)})
			if err != nil {
				return nil, err
			}
			return &countingConn{Conn: conn, counter: &pc.bytesRead}, nil
		},
		Proxy:               nil,
		IdleConnTimeout:     5 * time.Second,
		MaxIdleConnsPerHost: 2,
	}
	pc.Client = &http.Client{Timeout: timeout, Transport: pc.transport}
	return pc, nil
}

// Close 关闭客户端，释放底层资源
func (pc *ProxyClient) Close() {
	if pc.cancel != nil {
		pc.cancel()
	}
	if pc.transport != nil {
		pc.transport.CloseIdleConnections()
	}
	if pc.proxy != nil {
		pc.proxy.Close()
	}
	TotalBytes.Add(pc.bytesRead.Load())
}

// countingConn 统计真实网络传输字节
type countingConn struct {
	net.Conn
	counter *atomic.Uint64
}

func (c *countingConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.counter.Add(uint64(n))
	return n, err
}
