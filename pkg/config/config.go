package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/betbot/ngdist/pkg/distns"
)

// 存储驱动
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverBadger = "badger"
)

// LogConfig 日志配置
type LogConfig struct {
	Level      string
	File       string // 日志文件路径（可选）
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Listen    string
	RateLimit int // 采样/拟合接口每秒请求数，0 表示不限制
}

// StoreConfig 拟合记录存储配置
type StoreConfig struct {
	Driver          string // sqlite | badger
	Path            string
	CacheTTLSeconds int // 单条记录读取缓存，0 表示不缓存
}

// SamplingConfig 采样配置
type SamplingConfig struct {
	Seed uint64 // 0 表示不固定随机种子
}

// Config 应用配置
type Config struct {
	Distribution string // 分布名称，默认 normal
	Score        string // 默认评分规则：log | crps
	Log          LogConfig
	Server       ServerConfig
	Store        StoreConfig
	Sampling     SamplingConfig
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Distribution string `yaml:"distribution" json:"distribution"`
	Score        string `yaml:"score" json:"score"`
	Log          struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
		Compress   *bool  `yaml:"compress" json:"compress"`
	} `yaml:"log" json:"log"`
	Server struct {
		Listen    string `yaml:"listen" json:"listen"`
		RateLimit *int   `yaml:"rate_limit" json:"rate_limit"`
	} `yaml:"server" json:"server"`
	Store struct {
		Driver          string `yaml:"driver" json:"driver"`
		Path            string `yaml:"path" json:"path"`
		CacheTTLSeconds *int   `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`
	} `yaml:"store" json:"store"`
	Sampling struct {
		Seed uint64 `yaml:"seed" json:"seed"`
	} `yaml:"sampling" json:"sampling"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Distribution: distns.NormalName,
		Score:        distns.LogScoreName,
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
		Server: ServerConfig{Listen: ":8080", RateLimit: 50},
		Store:  StoreConfig{Driver: StoreDriverSQLite, Path: "data/fits.db", CacheTTLSeconds: 300},
	}
}

// LoadFromFile 加载配置
// 优先级：环境变量 > 配置文件 > 默认值；filePath 为空时只读取环境变量
func LoadFromFile(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		cf, err := loadConfigFile(filePath)
		if err != nil {
			return nil, errors.Wrapf(err, "加载配置文件失败 %s", filePath)
		}
		cfg.applyFile(cf)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "读取配置文件失败")
	}

	var configFile ConfigFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, errors.Wrap(err, "解析 YAML 配置文件失败")
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, errors.Wrap(err, "解析 JSON 配置文件失败")
		}
	default:
		return nil, errors.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return &configFile, nil
}

func (c *Config) applyFile(cf *ConfigFile) {
	c.Distribution = firstNonEmpty(cf.Distribution, c.Distribution)
	c.Score = firstNonEmpty(cf.Score, c.Score)
	c.Log.Level = firstNonEmpty(cf.Log.Level, c.Log.Level)
	c.Log.File = firstNonEmpty(cf.Log.File, c.Log.File)
	if cf.Log.MaxSizeMB > 0 {
		c.Log.MaxSizeMB = cf.Log.MaxSizeMB
	}
	if cf.Log.MaxBackups > 0 {
		c.Log.MaxBackups = cf.Log.MaxBackups
	}
	if cf.Log.MaxAgeDays > 0 {
		c.Log.MaxAgeDays = cf.Log.MaxAgeDays
	}
	if cf.Log.Compress != nil {
		c.Log.Compress = *cf.Log.Compress
	}
	c.Server.Listen = firstNonEmpty(cf.Server.Listen, c.Server.Listen)
	c.Store.Driver = firstNonEmpty(cf.Store.Driver, c.Store.Driver)
	c.Store.Path = firstNonEmpty(cf.Store.Path, c.Store.Path)
	if cf.Server.RateLimit != nil {
		c.Server.RateLimit = *cf.Server.RateLimit
	}
	if cf.Store.CacheTTLSeconds != nil {
		c.Store.CacheTTLSeconds = *cf.Store.CacheTTLSeconds
	}
	if cf.Sampling.Seed != 0 {
		c.Sampling.Seed = cf.Sampling.Seed
	}
}

func (c *Config) applyEnv() {
	c.Distribution = getEnv("NGDIST_DISTRIBUTION", c.Distribution)
	c.Score = getEnv("NGDIST_SCORE", c.Score)
	c.Log.Level = getEnv("NGDIST_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("NGDIST_LOG_FILE", c.Log.File)
	c.Log.Compress = parseBoolEnv("NGDIST_LOG_COMPRESS", c.Log.Compress)
	c.Server.Listen = getEnv("NGDIST_LISTEN", c.Server.Listen)
	c.Server.RateLimit = parseIntEnv("NGDIST_RATE_LIMIT", c.Server.RateLimit)
	c.Store.CacheTTLSeconds = parseIntEnv("NGDIST_STORE_CACHE_TTL", c.Store.CacheTTLSeconds)
	c.Store.Driver = getEnv("NGDIST_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = getEnv("NGDIST_STORE_PATH", c.Store.Path)
	c.Sampling.Seed = parseUintEnv("NGDIST_SEED", c.Sampling.Seed)
}

// Validate 验证配置
func (c *Config) Validate() error {
	d, err := distns.Lookup(c.Distribution)
	if err != nil {
		return errors.Wrap(err, "distribution 配置无效")
	}
	if _, err := distns.ScorerFor(d, c.Score); err != nil {
		return errors.Wrap(err, "score 配置无效")
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return errors.Errorf("未知的日志级别: %s", c.Log.Level)
	}
	switch c.Store.Driver {
	case StoreDriverSQLite, StoreDriverBadger:
	default:
		return errors.Errorf("未知的存储驱动: %s", c.Store.Driver)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return errors.New("store.path 不能为空")
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		return errors.New("server.listen 不能为空")
	}
	if c.Server.RateLimit < 0 {
		return errors.Errorf("server.rate_limit 不能为负数: %d", c.Server.RateLimit)
	}
	if c.Store.CacheTTLSeconds < 0 {
		return errors.Errorf("store.cache_ttl_seconds 不能为负数: %d", c.Store.CacheTTLSeconds)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseUintEnv 解析无符号整数环境变量
func parseUintEnv(key string, defaultValue uint64) uint64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
