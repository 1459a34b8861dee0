package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/model"
)

const EnvPrefix = "PORTAL"

// Load reads configs/config.yaml (or path when set), then .env and PORTAL_*
// environment overrides. ${VAR} placeholders in string values are expanded.
func Load(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	for i := range cfg.Auth.Accounts {
		acc := &cfg.Auth.Accounts[i]
		acc.Email = expand(acc.Email)
		acc.PasswordHash = expand(acc.PasswordHash)
	}
	if len(cfg.Form.Departments) == 0 {
		cfg.Form.Departments = model.DefaultDepartments
	}

	if err := validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("backend.kind", "rest")
	v.SetDefault("backend.timeout", "20s")
	v.SetDefault("backend.rest.base_url", "")
	v.SetDefault("backend.sheets.script_url", "")
	v.SetDefault("backend.postgres.dsn", "")
	v.SetDefault("backend.postgres.max_conns", 10)

	v.SetDefault("cache.store", "file")
	v.SetDefault("cache.key", "candidates_cache")
	v.SetDefault("cache.dir", "./data")
	v.SetDefault("cache.reconcile_timeout", "15s")
	v.SetDefault("cache.notification_buffer", 50)
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "people-drive:")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.session_ttl", "12h")
	v.SetDefault("auth.cookie_name", "portal_session")
	v.SetDefault("auth.secure_cookie", false)

	v.SetDefault("form.max_file_size", 5<<20)
}

func loadEnvFile() {
	for _, p := range []string{".env", filepath.Join("..", ".env")} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

// placeholder only matches the braced form so bcrypt hashes and other
// literal dollar signs survive.
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expand(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(placeholder.FindStringSubmatch(m)[1])
	})
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok || !strings.Contains(s, "${") {
			continue
		}
		if expanded := expand(s); expanded != s {
			v.Set(key, expanded)
		}
	}
}

func validate(cfg *Config) error {
	switch cfg.Backend.Kind {
	case "rest":
		if cfg.Backend.REST.BaseURL == "" {
			return errors.New("backend.rest.base_url is required")
		}
	case "sheets":
		if cfg.Backend.Sheets.ScriptURL == "" {
			return errors.New("backend.sheets.script_url is required")
		}
	case "postgres":
		if cfg.Backend.Postgres.DSN == "" {
			return errors.New("backend.postgres.dsn is required")
		}
	default:
		return errors.Errorf("unknown backend.kind %q", cfg.Backend.Kind)
	}

	switch cfg.Cache.Store {
	case "file":
		if cfg.Cache.Dir == "" {
			return errors.New("cache.dir is required for the file store")
		}
	case "redis":
		if cfg.Cache.Redis.Address == "" {
			return errors.New("cache.redis.address is required")
		}
	case "memory":
	default:
		return errors.Errorf("unknown cache.store %q", cfg.Cache.Store)
	}

	if len(cfg.Auth.Secret) < 16 {
		return errors.New("auth.secret must be at least 16 characters")
	}
	if len(cfg.Auth.Accounts) == 0 {
		return errors.New("auth.accounts must list at least one staff account")
	}
	for _, acc := range cfg.Auth.Accounts {
		if _, err := auth.ParseRole(string(acc.Role)); err != nil {
			return errors.Wrapf(err, "account %s", acc.Email)
		}
	}
	if cfg.Form.MaxFileSize <= 0 {
		return errors.New("form.max_file_size must be positive")
	}
	for _, kind := range cfg.Form.Documents() {
		if !kind.Valid() {
			return errors.Errorf("form.required_documents: unknown document %q", kind)
		}
	}
	return nil
}
