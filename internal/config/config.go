package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"SmartClaim/internal/notify"
	"SmartClaim/internal/web3"
	"SmartClaim/pkg/logger"

	"gopkg.in/yaml.v3"
)

// EnvPath 为指定配置文件路径的环境变量。
const EnvPath = "SMARTCLAIM_CONFIG"

// Config 描述了 smartclaimd 在启动阶段需要加载的全部配置。
type Config struct {
	Server ServerConfig        `yaml:"server"`
	Wallet web3.ProviderConfig `yaml:"wallet"`
	Log    logger.Config       `yaml:"log"`
	Notify NotifyConfig        `yaml:"notify"`
}

// ServerConfig 控制 HTTP 服务的监听地址等参数。
type ServerConfig struct {
	Address string `yaml:"address"`
	// NoticeHistory 为内存中保留的提示条数。
	NoticeHistory int `yaml:"notice_history"`
}

// NotifyConfig 描述可选的外部提示渠道，未配置的渠道不会启用。
type NotifyConfig struct {
	Redis    notify.RedisConfig    `yaml:"redis"`
	RabbitMQ notify.RabbitMQConfig `yaml:"rabbitmq"`
}

// Load 解析指定路径的配置文件。路径为空时返回默认配置，此时不会启用钱包。
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("获取工作目录失败: %w", err)
		}
		cfg.applyDefaults(wd)
		return &cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析配置路径失败: %w", err)
	}
	cfg.applyDefaults(filepath.Dir(abs))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置之间的依赖关系。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}
	if err := c.Wallet.Validate(); err != nil {
		return fmt.Errorf("wallet 配置无效: %w", err)
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		return errors.New("启用审计日志时必须指定 log.audit.path")
	}
	return nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值，相对路径以配置文件所在目录为基准。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.NoticeHistory <= 0 {
		c.Server.NoticeHistory = 50
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		c.Log.Audit.Path = filepath.Join(baseDir, "data", "audit.log")
	}
	c.Log.Audit.Path = resolve(baseDir, c.Log.Audit.Path)
	for i, p := range c.Log.OutputPaths {
		if p != "stdout" && p != "stderr" {
			c.Log.OutputPaths[i] = resolve(baseDir, p)
		}
	}

	c.Wallet.KeystoreDir = resolve(baseDir, c.Wallet.KeystoreDir)
}

func resolve(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
