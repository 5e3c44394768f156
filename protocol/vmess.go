package protocol

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/sinspired/clash-butler/utils"
)

const schemeVmess = "vmess://"

// Vmess vmess 节点
type Vmess struct {
	Name              string       `json:"name"`
	Server            string       `json:"server"`
	Port              Port         `json:"port"`
	UUID              string       `json:"uuid"`
	AlterID           LooseInt     `json:"alterId"`
	Cipher            string       `json:"cipher"`
	UDP               *bool        `json:"udp,omitempty"`
	TLS               *bool        `json:"tls,omitempty"`
	SkipCertVerify    *bool        `json:"skip-cert-verify,omitempty"`
	ServerName        string       `json:"servername,omitempty"`
	Network           string       `json:"network,omitempty"`
	WSOpts            *WSOptions   `json:"ws-opts,omitempty"`
	GrpcOpts          *GrpcOptions `json:"grpc-opts,omitempty"`
	ClientFingerprint string       `json:"client-fingerprint,omitempty"`
	ALPN              []string     `json:"alpn,omitempty"`
}

// vmessShare v2rayN 分享格式中的 JSON
type vmessShare struct {
	V    any         `json:"v"`
	PS   string      `json:"ps"`
	Add  string      `json:"add"`
	Port Port        `json:"port"`
	ID   string      `json:"id"`
	Aid  LooseInt    `json:"aid"`
	Scy  string      `json:"scy,omitempty"`
	Net  string      `json:"net,omitempty"`
	Type string      `json:"type,omitempty"`
	Host string      `json:"host,omitempty"`
	Path string      `json:"path,omitempty"`
	TLS  LooseString `json:"tls,omitempty"`
	SNI  string      `json:"sni,omitempty"`
	ALPN string      `json:"alpn,omitempty"`
	FP   string      `json:"fp,omitempty"`
}

// ParseVmessLink 解析 vmess:// 链接
// 优先按 base64 JSON 解析，失败后回退到 b64(cipher:uuid@server:port)?remarks= 旧格式
func ParseVmessLink(link string) (*Vmess, error) {
	body, ok := cutScheme(strings.TrimSpace(link), schemeVmess)
	if !ok {
		return nil, unsupported(link, "协议头不是 vmess://", nil)
	}
	body, fragName := splitFragment(body)

	var (
		v   *Vmess
		err error
	)
	var share vmessShare
	if decoded, derr := utils.Base64Decode(body); derr == nil && json.Unmarshal([]byte(decoded), &share) == nil {
		v, err = vmessFromShare(&share)
	} else {
		v, err = parseVmessLegacy(body)
	}
	if err != nil {
		return nil, unsupported(link, "无法解析 vmess 链接", err)
	}

	if v.Name == "" {
		v.Name = fragName
	}
	if v.Name == "" {
		v.Name = defaultName(v.Server, v.Port)
	}
	return v, nil
}

func vmessFromShare(s *vmessShare) (*Vmess, error) {
	network := strings.ToLower(strings.TrimSpace(s.Net))
	switch network {
	case "quic", "http":
		return nil, errors.New("vmess 不支持的传输方式: " + network)
	}
	server := strings.Trim(strings.TrimSpace(s.Add), "[]")
	if server == "" {
		return nil, errEmptyHost
	}

	v := &Vmess{
		Name:              strings.TrimSpace(s.PS),
		Server:            server,
		Port:              s.Port,
		UUID:              strings.TrimSpace(s.ID),
		AlterID:           s.Aid,
		Cipher:            s.Scy,
		SkipCertVerify:    boolPtr(true),
		ServerName:        s.SNI,
		Network:           network,
		ClientFingerprint: s.FP,
	}
	if v.Cipher == "" {
		v.Cipher = "auto"
	}
	if v.ClientFingerprint == "" {
		v.ClientFingerprint = "chrome"
	}
	switch strings.ToLower(string(s.TLS)) {
	case "tls", "true", "1":
		v.TLS = boolPtr(true)
	}
	if s.ALPN != "" {
		v.ALPN = strings.Split(s.ALPN, ",")
	}

	switch network {
	case "ws":
		v.WSOpts = newWSOptions(s.Path, s.Host)
	case "grpc":
		service := s.Path
		if service == "" {
			service = s.SNI
		}
		v.GrpcOpts = &GrpcOptions{ServiceName: service}
	}
	return v, nil
}

// parseVmessLegacy b64(cipher:uuid@server:port)?remarks=&alterId=
// @ 之前的部分也可能单独 base64
func parseVmessLegacy(body string) (*Vmess, error) {
	main, query, _ := strings.Cut(body, "?")
	main = utils.Base64DecodeOr(strings.TrimSuffix(main, "/"))

	at := strings.LastIndex(main, "@")
	if at < 0 {
		return nil, errMissingAt
	}
	server, port, err := parseHostPort(main[at+1:])
	if err != nil {
		return nil, err
	}
	cipher, uuid, ok := strings.Cut(utils.Base64DecodeOr(main[:at]), ":")
	if !ok || uuid == "" {
		return nil, errors.New("缺少加密方式或 uuid")
	}

	v := &Vmess{
		Server:            server,
		Port:              port,
		UUID:              uuid,
		Cipher:            cipher,
		SkipCertVerify:    boolPtr(true),
		ClientFingerprint: "chrome",
	}
	if v.Cipher == "" {
		v.Cipher = "auto"
	}

	params := parseQuery(query)
	v.Name = strings.TrimSpace(unescape(params["remarks"]))
	if aid := params["alterId"]; aid != "" {
		n, err := strconv.Atoi(aid)
		if err != nil {
			return nil, errors.New("alterId 无效: " + aid)
		}
		v.AlterID = LooseInt(n)
	}
	if isTruthy(params["tls"]) {
		v.TLS = boolPtr(true)
	}
	if params["obfs"] == "websocket" {
		v.Network = "ws"
		v.WSOpts = newWSOptions(unescape(params["path"]), unescape(params["obfsParam"]))
	}
	return v, nil
}

// Link 导出为 v2rayN 格式 (v=2)
func (v *Vmess) Link() (string, error) {
	s := vmessShare{
		V:    "2",
		PS:   v.Name,
		Add:  v.Server,
		Port: v.Port,
		ID:   v.UUID,
		Aid:  v.AlterID,
		Scy:  v.Cipher,
		Net:  v.Network,
		SNI:  v.ServerName,
		ALPN: strings.Join(v.ALPN, ","),
		FP:   v.ClientFingerprint,
	}
	if v.TLS != nil && *v.TLS {
		s.TLS = "tls"
	}
	if v.WSOpts != nil {
		s.Path = v.WSOpts.Path
		s.Host = v.WSOpts.Headers["Host"]
	}
	if v.GrpcOpts != nil {
		s.Path = v.GrpcOpts.ServiceName
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return schemeVmess + utils.Base64Encode(string(data)), nil
}

func (v *Vmess) Equal(o *Vmess) bool {
	if v == nil || o == nil {
		return v == o
	}
	return v.Server == o.Server && v.Port == o.Port && v.UUID == o.UUID
}

func (v *Vmess) identity() string {
	return identity(v.Server, portString(v.Port), v.UUID)
}

func (v *Vmess) clone() *Vmess {
	c := *v
	c.UDP = cloneBool(v.UDP)
	c.TLS = cloneBool(v.TLS)
	c.SkipCertVerify = cloneBool(v.SkipCertVerify)
	c.WSOpts = v.WSOpts.clone()
	c.GrpcOpts = v.GrpcOpts.clone()
	c.ALPN = cloneStrings(v.ALPN)
	return &c
}
