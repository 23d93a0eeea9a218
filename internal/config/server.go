package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// ServerConfig holds API process settings read from the environment.
type ServerConfig struct {
	Port               string   `env:"API_PORT" env-default:"8080"`
	Env                string   `env:"API_ENV" env-default:"development"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	LogLevel           string   `env:"LOG_LEVEL" env-default:"info"`

	// MaxCycleLimit caps max_cycle on API requests.
	MaxCycleLimit int `env:"MAX_CYCLE_LIMIT" env-default:"20000"`
	// CacheEntries bounds the shared current cache. Zero disables it.
	CacheEntries   int    `env:"CURRENT_CACHE_ENTRIES" env-default:"1000000"`
	SourceModelDir string `env:"SOURCE_MODEL_DIR" env-default:"examples/source_models"`
	StaticDir      string `env:"STATIC_DIR"`
}

func LoadServer() (*ServerConfig, error) {
	var c ServerConfig
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *ServerConfig) Production() bool { return c.Env == "production" }
