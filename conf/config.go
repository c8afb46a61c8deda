package conf

import (
	"os"

	"github.com/zhukovaskychina/xminidb/logger"

	"gopkg.in/ini.v1"
)

// 默认引擎参数
const (
	DefaultPoolSize          = 64
	DefaultReplacerK         = 2
	DefaultPageSize          = 4096
	DefaultHeaderMaxDepth    = 2
	DefaultDirectoryMaxDepth = 9
	DefaultBucketMaxSize     = 255
)

// Cfg 存储引擎配置
type Cfg struct {
	Raw *ini.File

	DataDir string
	AppName string

	// buffer pool
	PoolSize  int `default:"64"`
	ReplacerK int `default:"2"`
	PageSize  int `default:"4096"`

	// extendible hash index
	HeaderMaxDepth    int `default:"2"`
	DirectoryMaxDepth int `default:"9"`
	BucketMaxSize     int `default:"255"`

	// logs
	LogPath  string `default:""`
	LogLevel string `default:"info"`
}

// NewCfg 创建带默认值的配置
func NewCfg() *Cfg {
	return &Cfg{
		Raw:               ini.Empty(),
		DataDir:           "data",
		AppName:           "xminidb",
		PoolSize:          DefaultPoolSize,
		ReplacerK:         DefaultReplacerK,
		PageSize:          DefaultPageSize,
		HeaderMaxDepth:    DefaultHeaderMaxDepth,
		DirectoryMaxDepth: DefaultDirectoryMaxDepth,
		BucketMaxSize:     DefaultBucketMaxSize,
		LogLevel:          "info",
	}
}

// Load 从ini文件加载配置，文件不存在时保留默认值
func (cfg *Cfg) Load(configFile string) *Cfg {
	if configFile == "" {
		return cfg
	}
	if _, err := os.Stat(configFile); err != nil {
		logger.Warnf("config file %s not found, using defaults", configFile)
		return cfg
	}

	iniFile, err := ini.Load(configFile)
	if err != nil {
		logger.Errorf("failed to parse config file %s: %v", configFile, err)
		return cfg
	}
	cfg.Raw = iniFile

	cfg.parseEngineCfg(iniFile.Section("engine"))
	cfg.parseLogCfg(iniFile.Section("log"))
	return cfg
}

func (cfg *Cfg) parseEngineCfg(section *ini.Section) *Cfg {
	cfg.DataDir = section.Key("data_dir").MustString(cfg.DataDir)
	cfg.PoolSize = section.Key("pool_size").MustInt(cfg.PoolSize)
	cfg.ReplacerK = section.Key("replacer_k").MustInt(cfg.ReplacerK)
	cfg.PageSize = section.Key("page_size").MustInt(cfg.PageSize)
	cfg.HeaderMaxDepth = section.Key("header_max_depth").MustInt(cfg.HeaderMaxDepth)
	cfg.DirectoryMaxDepth = section.Key("directory_max_depth").MustInt(cfg.DirectoryMaxDepth)
	cfg.BucketMaxSize = section.Key("bucket_max_size").MustInt(cfg.BucketMaxSize)
	return cfg
}

func (cfg *Cfg) parseLogCfg(section *ini.Section) *Cfg {
	cfg.LogPath = section.Key("log_path").MustString(cfg.LogPath)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	return cfg
}
