package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Server struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"server"`
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	AI struct {
		URL    string `mapstructure:"url"`
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"ai"`
	Notion struct {
		Token   string `mapstructure:"token"`
		Version string `mapstructure:"version"`
	} `mapstructure:"notion"`
	Sources struct {
		MailgunSigningKey   string `mapstructure:"mailgun_signing_key"`
		ResendSvixSecret    string `mapstructure:"resend_svix_secret"`
		ResendAPIKey        string `mapstructure:"resend_api_key"`
		NotionWebhookSecret string `mapstructure:"notion_webhook_secret"`
		SlackSigningSecret  string `mapstructure:"slack_signing_secret"`
	} `mapstructure:"sources"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
// Environment variables use the DISCUBOT_ prefix with underscores, e.g.
// DISCUBOT_NOTION_TOKEN overrides notion.token.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if path != "" {
		viper.AddConfigPath(path)
	}
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("discubot")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("notion.version", "2022-06-28")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars may carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
