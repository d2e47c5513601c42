package config

import "time"

type Config interface {
	EnvConfig
	APIConfig
	AuthConfig
	StorageConfig
	BackendConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetTokenReadTimeout() time.Duration
}

type AuthConfig interface {
	GetTelegramCredentialWait() time.Duration
	GetVKRetryDelay() time.Duration
	GetPollInterval() time.Duration
	GetDurableWriteWait() time.Duration
	GetLoginPath() string
	GetRegisterPath() string
	GetHomePath() string
}

type StorageConfig interface {
	GetDataFolder() string
	GetSealKey() string
	GetRedisURL() string
	GetRedisPrefix() string
}

type BackendConfig interface {
	GetPort() string
	GetTelegramBotToken() string
	GetVKAppSecret() string
	GetTokenSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetInitDataMaxAge() time.Duration
	GetAllowedOrigins() []string
}

type mainConfig struct {
	Env     EnvVars `yaml:"env"`
	API     API     `yaml:"api"`
	Auth    Auth    `yaml:"auth"`
	Storage Storage `yaml:"storage"`
	Backend Backend `yaml:"backend"`
}

var _ Config = (*mainConfig)(nil)

func (c *mainConfig) GetAppName() string { return c.Env.AppName }
func (c *mainConfig) GetEnv() string { return c.Env.Env }
func (c *mainConfig) GetLogLevel() string { return c.Env.LogLevel }

func (c *mainConfig) GetBaseURL() string { return c.API.BaseURL }
func (c *mainConfig) GetRequestTimeout() time.Duration { return c.API.RequestTimeout }
func (c *mainConfig) GetTokenReadTimeout() time.Duration { return c.API.TokenReadTimeout }

func (c *mainConfig) GetTelegramCredentialWait() time.Duration { return c.Auth.TelegramWait }
func (c *mainConfig) GetVKRetryDelay() time.Duration { return c.Auth.VKRetryDelay }
func (c *mainConfig) GetPollInterval() time.Duration { return c.Auth.PollInterval }
func (c *mainConfig) GetDurableWriteWait() time.Duration { return c.Auth.DurableWriteWait }
func (c *mainConfig) GetLoginPath() string { return c.Auth.LoginPath }
func (c *mainConfig) GetRegisterPath() string { return c.Auth.RegisterPath }
func (c *mainConfig) GetHomePath() string { return c.Auth.HomePath }

func (c *mainConfig) GetDataFolder() string { return c.Storage.DataFolder }
func (c *mainConfig) GetSealKey() string { return c.Storage.SealKey }
func (c *mainConfig) GetRedisURL() string { return c.Storage.RedisURL }
func (c *mainConfig) GetRedisPrefix() string { return c.Storage.RedisPrefix }

func (c *mainConfig) GetPort() string {
	port := c.Backend.Port
	if port != "" && port[0] != ':' {
		port = ":" + port
	}
	return port
}
func (c *mainConfig) GetTelegramBotToken() string { return c.Backend.TelegramBotToken }
func (c *mainConfig) GetVKAppSecret() string { return c.Backend.VKAppSecret }
func (c *mainConfig) GetTokenSecret() string { return c.Backend.TokenSecret }
func (c *mainConfig) GetAccessTokenExpiry() time.Duration { return c.Backend.AccessTokenExpiry }
func (c *mainConfig) GetRefreshTokenExpiry() time.Duration { return c.Backend.RefreshTokenExpiry }
func (c *mainConfig) GetInitDataMaxAge() time.Duration { return c.Backend.InitDataMaxAge }
func (c *mainConfig) GetAllowedOrigins() []string { return c.Backend.AllowedOrigins }
