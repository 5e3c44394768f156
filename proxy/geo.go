package proxies

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/oschwald/maxminddb-golang/v2"
	"github.com/sinspired/clash-butler/protocol"
)

// GeoDB 基于 MaxMind 数据库的离线位置查询
type GeoDB struct {
	reader *maxminddb.Reader
}

type geoRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	// 仅 ASN 数据库包含
	ASOrg string `maxminddb:"autonomous_system_organization"`
}

// OpenGeoDB 打开 mmdb 数据库，路径以 .zst 结尾时先解压到同目录
func OpenGeoDB(path string) (*GeoDB, error) {
	if strings.HasSuffix(path, ".zst") {
		plain := strings.TrimSuffix(path, ".zst")
		if _, err := os.Stat(plain); err != nil {
			if err := decompressZstdFile(path, plain); err != nil {
				return nil, err
			}
		}
		path = plain
	}

	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("maxmind数据库打开失败: %w", err)
	}
	return &GeoDB{reader: db}, nil
}

func decompressZstdFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("打开压缩数据库失败: %w", err)
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return fmt.Errorf("zstd解码器创建失败: %w", err)
	}
	defer dec.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("maxmind数据库文件创建失败: %w", err)
	}
	if _, err := io.Copy(out, dec); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("maxmind数据库文件解压失败: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("关闭数据库文件失败: %w", err)
	}
	return os.Rename(tmp, dst)
}

// Close 关闭数据库
func (g *GeoDB) Close() error {
	if g == nil || g.reader == nil {
		return nil
	}
	return g.reader.Close()
}

// LookupIP 查询单个地址
func (g *GeoDB) LookupIP(addr netip.Addr) (GeoInfo, bool) {
	var rec geoRecord
	res := g.reader.Lookup(addr.Unmap())
	if err := res.Decode(&rec); err != nil || !res.Found() {
		return GeoInfo{}, false
	}
	info := GeoInfo{
		IP:          addr.String(),
		CountryCode: rec.Country.ISOCode,
		Country:     rec.Country.Names["en"],
		City:        rec.City.Names["en"],
		ISP:         rec.ASOrg,
	}
	return info, info.CountryCode != ""
}

// Lookup 按节点服务器地址查询位置，域名会先解析
func (g *GeoDB) Lookup(ctx context.Context) GeoLookup {
	return func(p protocol.Proxy) (GeoInfo, bool) {
		addr, err := resolveServer(ctx, p.Server())
		if err != nil {
			return GeoInfo{}, false
		}
		return g.LookupIP(addr)
	}
}

func resolveServer(ctx context.Context, server string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(strings.Trim(server, "[]")); err == nil {
		return addr, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", server)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("域名 %s 没有解析结果", server)
	}
	return addrs[0], nil
}

// Reader 底层数据库，g 为 nil 时返回 nil
func (g *GeoDB) Reader() *maxminddb.Reader {
	if g == nil {
		return nil
	}
	return g.reader
}
