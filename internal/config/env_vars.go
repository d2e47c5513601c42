package config

import "time"

// EnvVars holds process-wide settings.
type EnvVars struct {
	AppName  string `yaml:"app_name" env:"APP_NAME" env-default:"Finance Mini App"`
	Env      string `yaml:"env" env:"ENV" env-default:"DEV"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

// API configures the client side of the REST contract.
type API struct {
	BaseURL          string        `yaml:"base_url" env:"API_BASE_URL" env-default:"http://localhost:8080"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"API_REQUEST_TIMEOUT" env-default:"10s"`
	TokenReadTimeout time.Duration `yaml:"token_read_timeout" env:"API_TOKEN_READ_TIMEOUT" env-default:"100ms"`
}

// Auth configures the platform login orchestrators.
type Auth struct {
	TelegramWait     time.Duration `yaml:"telegram_wait" env:"AUTH_TELEGRAM_WAIT" env-default:"8s"`
	VKRetryDelay     time.Duration `yaml:"vk_retry_delay" env:"AUTH_VK_RETRY_DELAY" env-default:"500ms"`
	PollInterval     time.Duration `yaml:"poll_interval" env:"AUTH_POLL_INTERVAL" env-default:"50ms"`
	DurableWriteWait time.Duration `yaml:"durable_write_wait" env:"AUTH_DURABLE_WRITE_WAIT" env-default:"2s"`
	LoginPath        string        `yaml:"login_path" env:"AUTH_LOGIN_PATH" env-default:"/login"`
	RegisterPath     string        `yaml:"register_path" env:"AUTH_REGISTER_PATH" env-default:"/register"`
	HomePath         string        `yaml:"home_path" env:"AUTH_HOME_PATH" env-default:"/"`
}

// Storage configures the durable storage backends.
type Storage struct {
	DataFolder  string `yaml:"data_folder" env:"FOLDER" env-default:"./data"`
	SealKey     string `yaml:"seal_key" env:"STORAGE_SEAL_KEY"`
	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix string `yaml:"redis_prefix" env:"REDIS_PREFIX" env-default:"miniapp:"`
}

// Backend configures the development backend.
type Backend struct {
	Port               string        `yaml:"port" env:"PORT" env-default:"8080"`
	TelegramBotToken   string        `yaml:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	VKAppSecret        string        `yaml:"vk_app_secret" env:"VK_APP_SECRET"`
	TokenSecret        string        `yaml:"token_secret" env:"TOKEN_SECRET" env-default:"dev-secret"`
	AccessTokenExpiry  time.Duration `yaml:"access_token_expiry" env:"ACCESS_TOKEN_EXPIRY" env-default:"15m"`
	RefreshTokenExpiry time.Duration `yaml:"refresh_token_expiry" env:"REFRESH_TOKEN_EXPIRY" env-default:"168h"`
	InitDataMaxAge     time.Duration `yaml:"init_data_max_age" env:"INIT_DATA_MAX_AGE" env-default:"24h"`
	AllowedOrigins     []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}
