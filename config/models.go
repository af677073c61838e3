package config

import "time"

// UpstreamConfig describes the conversation endpoint every relayed prompt is sent to.
type UpstreamConfig struct {
	ReverseProxyURL string        `mapstructure:"reverse_proxy_url"`
	Model           string        `mapstructure:"model"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// Config holds the application configuration.
type Config struct {
	ListenAddress string         `mapstructure:"listen_address"`
	LogLevel      string         `mapstructure:"log_level"`
	Upstream      UpstreamConfig `mapstructure:"upstream"`
}
