package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type GitHubConfig struct {
	AppID          int64  `mapstructure:"app_id"`
	PrivateKeyPath string `mapstructure:"private_key_path"`
	WrapperOwner   string `mapstructure:"wrapper_owner"`
	WrapperRepo    string `mapstructure:"wrapper_repo"`
	UpstreamOwner  string `mapstructure:"upstream_owner"`
	UpstreamRepo   string `mapstructure:"upstream_repo"`
	DeployBranch   string `mapstructure:"deploy_branch"`
}

type SlackConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	IdentityTTL time.Duration `mapstructure:"identity_ttl"`
}

type DeployConfig struct {
	TerminalStages []string      `mapstructure:"terminal_stages"`
	SyncBotUserID  int64         `mapstructure:"sync_bot_user_id"`
	SyncBotEmail   string        `mapstructure:"sync_bot_email"`
	QueuedTTL      time.Duration `mapstructure:"queued_ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Config struct {
	DatabaseURL string       `mapstructure:"database_url"`
	ServerPort  string       `mapstructure:"server_port"`
	GitHub      GitHubConfig `mapstructure:"github"`
	Slack       SlackConfig  `mapstructure:"slack"`
	Deploy      DeployConfig `mapstructure:"deploy"`
	Redis       RedisConfig  `mapstructure:"redis"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.GitHub.DeployBranch == "" {
		config.GitHub.DeployBranch = "main"
	}
	if len(config.Deploy.TerminalStages) == 0 {
		config.Deploy.TerminalStages = []string{"production"}
	}
	if config.Deploy.QueuedTTL == 0 {
		config.Deploy.QueuedTTL = 30 * time.Minute
	}
	if config.Slack.IdentityTTL == 0 {
		config.Slack.IdentityTTL = 24 * time.Hour
	}

	if config.DatabaseURL == "" {
		log.Fatal("database_url must be set in the config file")
	}
	if config.Slack.BotToken == "" {
		log.Fatal("slack.bot_token must be set in the config file")
	}
	if config.GitHub.AppID == 0 || config.GitHub.PrivateKeyPath == "" {
		log.Fatal("github.app_id and github.private_key_path must be set in the config file")
	}
	if config.GitHub.WrapperOwner == "" || config.GitHub.WrapperRepo == "" ||
		config.GitHub.UpstreamOwner == "" || config.GitHub.UpstreamRepo == "" {
		log.Fatal("github wrapper and upstream repositories must be set in the config file")
	}

	return &config
}
