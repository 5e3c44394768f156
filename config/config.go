// Package config 解析配置文件
package config

import (
	_ "embed"
)

type Config struct {
	// 订阅来源
	SubUrls       []string `yaml:"sub-urls"`
	SubUrlsRemote []string `yaml:"sub-urls-remote"`
	SubFiles      []string `yaml:"sub-files"`
	SubTexts      []string `yaml:"sub-texts"`
	Pools         []string `yaml:"pools"`

	// 订阅获取
	SubUrlsReTry         int      `yaml:"sub-urls-retry"`
	SubUrlsRetryInterval int      `yaml:"sub-urls-retry-interval"`
	SubUrlsTimeout       int      `yaml:"sub-urls-timeout"`
	SubDownloadLimit     string   `yaml:"sub-download-limit"`
	SubMaxSize           string   `yaml:"sub-max-size"`
	SystemProxy          string   `yaml:"system-proxy"`
	GithubProxy          string   `yaml:"github-proxy"`
	GithubProxyGroup     []string `yaml:"ghproxy-group"`
	Concurrent           int      `yaml:"concurrent"`

	// 筛选与命名
	NodeType      []string `yaml:"node-type"`
	RenameNode    bool     `yaml:"rename-node"`
	RenamePattern string   `yaml:"rename-pattern"`
	NodePrefix    string   `yaml:"node-prefix"`
	MaxMindDBPath string   `yaml:"maxmind-db-path"`

	// 存活检测
	AliveCheck      bool   `yaml:"alive-check"`
	AliveTestURL    string `yaml:"alive-test-url"`
	AliveTimeout    int    `yaml:"alive-timeout"`
	AliveConcurrent int    `yaml:"alive-concurrent"`

	// 输出
	ClashTemplate  string `yaml:"clash-template"`
	OutputDir      string `yaml:"output-dir"`
	SaveMethod     string `yaml:"save-method"`
	WebDAVURL      string `yaml:"webdav-url"`
	WebDAVUsername string `yaml:"webdav-username"`
	WebDAVPassword string `yaml:"webdav-password"`
	S3Endpoint     string `yaml:"s3-endpoint"`
	S3AccessID     string `yaml:"s3-access-id"`
	S3SecretKey    string `yaml:"s3-secret-key"`
	S3Bucket       string `yaml:"s3-bucket"`
	S3UseSSL       bool   `yaml:"s3-use-ssl"`
	S3BucketLookup string `yaml:"s3-bucket-lookup"`

	// 调度与服务
	CronExpression string `yaml:"cron-expression"`
	CheckInterval  int    `yaml:"check-interval"`
	ListenPort     string `yaml:"listen-port"`
	APIKey         string `yaml:"api-key"`

	// 日志
	LogLevel      string `yaml:"log-level"`
	LogFile       string `yaml:"log-file"`
	LogMaxSize    int    `yaml:"log-max-size"`
	LogMaxBackups int    `yaml:"log-max-backups"`
}

// GlobalConfig 当前生效的配置
var GlobalConfig = Default()

// Default 给未更改配置文件的用户一个默认值
func Default() *Config {
	return &Config{
		SubUrlsReTry:         3,
		SubUrlsRetryInterval: 1,
		SubUrlsTimeout:       10,
		SubMaxSize:           "20MB",
		Concurrent:           20,
		RenamePattern:        "${FLAG}${COUNTRYCODE}",
		AliveTestURL:         "https://www.gstatic.com/generate_204",
		AliveTimeout:         5000,
		AliveConcurrent:      50,
		OutputDir:            "output",
		SaveMethod:           "local",
		CheckInterval:        720,
		ListenPort:           ":8199",
		LogLevel:             "info",
		LogMaxSize:           10,
		LogMaxBackups:        3,
	}
}

//go:embed config.example.yaml
var DefaultConfigTemplate []byte
