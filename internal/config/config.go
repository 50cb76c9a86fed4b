package config

import (
	"errors"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	AdBlock  AdBlockConfig  `yaml:"adblock"`
	Cache    CacheConfig    `yaml:"cache"`
	Storage  StorageConfig  `yaml:"storage"`
	API      APIConfig      `yaml:"api"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	Bin         string `yaml:"bin"`
	UserDataDir string `yaml:"user_data_dir"`
	Leakless    bool   `yaml:"leakless"`
	ControlURL  string `yaml:"control_url"`
	SlowMotion  int    `yaml:"slow_motion_ms"`
}

type AdBlockConfig struct {
	// Lists maps an ad blocking mode to the filter list URLs compiled for it.
	Lists               map[string][]string `yaml:"lists"`
	FetchTimeoutSeconds int                 `yaml:"fetch_timeout_seconds"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	URL        string `yaml:"url"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

type StorageConfig struct {
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

type MongoDBConfig struct {
	URI            string `yaml:"uri"`
	Database       string `yaml:"database"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type SecurityConfig struct {
	// CookieKey is the 32 byte AES key for stored session cookies.
	CookieKey string `yaml:"cookie_key"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless: true,
			Leakless: true,
		},
		AdBlock: AdBlockConfig{
			Lists: map[string][]string{
				"ads_only": {
					"https://easylist.to/easylist/easylist.txt",
				},
				"ads_and_tracking": {
					"https://easylist.to/easylist/easylist.txt",
					"https://easylist.to/easylist/easyprivacy.txt",
				},
			},
			FetchTimeoutSeconds: 60,
		},
		Cache: CacheConfig{
			Redis: RedisConfig{TTLMinutes: 24 * 60},
		},
		Storage: StorageConfig{
			MongoDB: MongoDBConfig{
				Database:       "browserstealth",
				TimeoutSeconds: 10,
			},
		},
		API: APIConfig{
			Addr: "127.0.0.1:8089",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()

			decoder := yaml.NewDecoder(file)
			if err := decoder.Decode(config); err != nil {
				return nil, err
			}
		}
	}

	applyEnv(config)
	return config, nil
}

func applyEnv(config *Config) {
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		config.Storage.MongoDB.URI = uri
	}
	if dbName := os.Getenv("MONGODB_DATABASE"); dbName != "" {
		config.Storage.MongoDB.Database = dbName
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.Cache.Redis.URL = redisURL
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		config.Browser.Bin = bin
	}
	if headless := os.Getenv("STEALTH_HEADLESS"); headless != "" {
		if v, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = v
		}
	}
	if level := os.Getenv("STEALTH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if key := os.Getenv("COOKIE_ENCRYPTION_KEY"); key != "" {
		config.Security.CookieKey = key
	}
	if addr := os.Getenv("STEALTH_API_ADDR"); addr != "" {
		config.API.Addr = addr
	}
}
