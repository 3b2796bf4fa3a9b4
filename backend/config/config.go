package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Auth struct {
		Secret   string        `mapstructure:"secret"`
		TokenTTL time.Duration `mapstructure:"tokenTtl"`
	} `mapstructure:"auth"`
	Collab struct {
		AuditQueueSize int `mapstructure:"auditQueueSize"`
		AuditWorkers   int `mapstructure:"auditWorkers"`
		AuditMaxRetry  int `mapstructure:"auditMaxRetry"`
	} `mapstructure:"collab"`
}

// Load reads collabsync.yaml, searching the paths the daemon is usually
// started from.
func Load() (*Config, error) {
	cfg := &Config{}
	v := viper.New()
	v.SetConfigName("collabsync")
	v.SetConfigType("yaml")
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.SetDefault("running.port", 8080)
	v.SetDefault("auth.tokenTtl", time.Hour)
	v.SetDefault("collab.auditQueueSize", 10_000)
	v.SetDefault("collab.auditWorkers", 4)
	v.SetDefault("collab.auditMaxRetry", 3)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
