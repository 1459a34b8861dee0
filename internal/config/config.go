package config

import (
	"strings"
	"time"

	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/model"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Backend BackendConfig `mapstructure:"backend"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Form    FormConfig    `mapstructure:"form"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowOrigins    []string      `mapstructure:"allow_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BackendConfig struct {
	Kind     string         `mapstructure:"kind"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	REST     RESTConfig     `mapstructure:"rest"`
	Sheets   SheetsConfig   `mapstructure:"sheets"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RESTConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type SheetsConfig struct {
	ScriptURL string `mapstructure:"script_url"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type CacheConfig struct {
	Store              string        `mapstructure:"store"`
	Key                string        `mapstructure:"key"`
	Dir                string        `mapstructure:"dir"`
	ReconcileTimeout   time.Duration `mapstructure:"reconcile_timeout"`
	NotificationBuffer int           `mapstructure:"notification_buffer"`
	Redis              RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type AuthConfig struct {
	Secret       string         `mapstructure:"secret"`
	SessionTTL   time.Duration  `mapstructure:"session_ttl"`
	CookieName   string         `mapstructure:"cookie_name"`
	SecureCookie bool           `mapstructure:"secure_cookie"`
	Accounts     []auth.Account `mapstructure:"accounts"`
}

type FormConfig struct {
	Departments       []string `mapstructure:"departments"`
	MaxFileSize       int64    `mapstructure:"max_file_size"`
	RequiredDocuments []string `mapstructure:"required_documents"`
}

// Documents returns the required document kinds. Unknown names are rejected
// by Load.
func (f *FormConfig) Documents() []model.DocumentKind {
	kinds := make([]model.DocumentKind, 0, len(f.RequiredDocuments))
	for _, d := range f.RequiredDocuments {
		kinds = append(kinds, model.DocumentKind(strings.ToLower(strings.TrimSpace(d))))
	}
	return kinds
}
