// Package config loads server configuration.
//
// Values come from two layers, later layers winning:
//
//  1. Default(), loaded through the koanf structs provider
//  2. environment variables, mapped explicitly in envToPath
//
// The merged result is decoded into Config and checked with validator tags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/validation"

	_ "time/tzdata"
)

// Config is the full server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	Auth      AuthConfig      `koanf:"auth"`
	Users     UsersConfig     `koanf:"users"`
	Access    AccessConfig    `koanf:"access"`
	Projects  ProjectsConfig  `koanf:"projects"`
	Bootstrap BootstrapConfig `koanf:"bootstrap"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"             validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	// Path is a file path or ":memory:".
	Path string `koanf:"path" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level"  validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type AuthConfig struct {
	JWTSecret        string        `koanf:"jwt_secret"        validate:"required,min=16"`
	TokenTTL         time.Duration `koanf:"token_ttl"         validate:"gt=0"`
	BcryptCost       int           `koanf:"bcrypt_cost"       validate:"min=4,max=31"`
	SecureCookies    bool          `koanf:"secure_cookies"`
	AllowAnonymous   bool          `koanf:"allow_anonymous"`
	AnonymousAccount string        `koanf:"anonymous_account" validate:"required_if=AllowAnonymous true"`
}

type UsersConfig struct {
	MaxNameLength      int      `koanf:"max_name_length"      validate:"gt=0"`
	MaxRealNameLength  int      `koanf:"max_real_name_length" validate:"gt=0"`
	RejectNumericNames bool     `koanf:"reject_numeric_names"`
	Languages          []string `koanf:"languages"            validate:"min=1,dive,required"`
	DefaultLanguage    string   `koanf:"default_language"     validate:"required"`
	DefaultTimezone    string   `koanf:"default_timezone"     validate:"required,timezone"`
}

// Rules converts the user section into validation rules.
func (u UsersConfig) Rules() validation.Rules {
	langs := make([]string, len(u.Languages))
	for i, l := range u.Languages {
		langs[i] = strings.ToLower(strings.TrimSpace(l))
	}
	return validation.Rules{
		MaxNameLength:      u.MaxNameLength,
		MaxRealNameLength:  u.MaxRealNameLength,
		RejectNumericNames: u.RejectNumericNames,
		Languages:          langs,
		DefaultLanguage:    strings.ToLower(strings.TrimSpace(u.DefaultLanguage)),
		DefaultTimezone:    u.DefaultTimezone,
	}
}

// AccessConfig holds the tier set and the privilege thresholds, all as tier ids.
type AccessConfig struct {
	Tiers              []access.Tier `koanf:"tiers"               validate:"min=1,dive"`
	DefaultLevel       string        `koanf:"default_level"       validate:"required"`
	ViewThreshold      int           `koanf:"view_threshold"      validate:"gt=0"`
	ManageThreshold    int           `koanf:"manage_threshold"    validate:"gt=0"`
	ProtectedThreshold int           `koanf:"protected_threshold" validate:"gt=0"`
}

// Thresholds returns the privilege thresholds for access.ThresholdPrivilege.
func (a AccessConfig) Thresholds() access.Thresholds {
	return access.Thresholds{
		View:      a.ViewThreshold,
		Manage:    a.ManageThreshold,
		Protected: a.ProtectedThreshold,
	}
}

type ProjectsConfig struct {
	DefaultName string `koanf:"default_name" validate:"required"`
}

// BootstrapConfig seeds the first administrator when the user table is
// empty. Nothing is seeded while AdminPassword is empty.
type BootstrapConfig struct {
	AdminName     string `koanf:"admin_name"     validate:"required"`
	AdminPassword string `koanf:"admin_password" validate:"omitempty,max=72"`
}

// Default returns the configuration used when no overrides are set.
// Auth.JWTSecret has no default and must be supplied.
func Default() *Config {
	rules := validation.DefaultRules()
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "data/issuedesk.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 12,
		},
		Users: UsersConfig{
			MaxNameLength:      rules.MaxNameLength,
			MaxRealNameLength:  rules.MaxRealNameLength,
			RejectNumericNames: rules.RejectNumericNames,
			Languages:          rules.Languages,
			DefaultLanguage:    rules.DefaultLanguage,
			DefaultTimezone:    rules.DefaultTimezone,
		},
		Access: AccessConfig{
			Tiers:              access.DefaultTiers(),
			DefaultLevel:       "reporter",
			ViewThreshold:      access.Manager,
			ManageThreshold:    access.Administrator,
			ProtectedThreshold: access.Administrator,
		},
		Projects:  ProjectsConfig{DefaultName: "Default Project"},
		Bootstrap: BootstrapConfig{AdminName: "administrator"},
	}
}

// envToPath maps environment variables to config keys. PORT, DB_PATH and
// JWT_SECRET are kept for existing deployments.
var envToPath = map[string]string{
	"PORT":       "server.port",
	"DB_PATH":    "database.path",
	"JWT_SECRET": "auth.jwt_secret",

	"ISSUEDESK_PORT":             "server.port",
	"ISSUEDESK_READ_TIMEOUT":     "server.read_timeout",
	"ISSUEDESK_WRITE_TIMEOUT":    "server.write_timeout",
	"ISSUEDESK_SHUTDOWN_TIMEOUT": "server.shutdown_timeout",
	"ISSUEDESK_DB_PATH":          "database.path",
	"ISSUEDESK_LOG_LEVEL":        "log.level",
	"ISSUEDESK_LOG_FORMAT":       "log.format",

	"ISSUEDESK_JWT_SECRET":        "auth.jwt_secret",
	"ISSUEDESK_TOKEN_TTL":         "auth.token_ttl",
	"ISSUEDESK_BCRYPT_COST":       "auth.bcrypt_cost",
	"ISSUEDESK_SECURE_COOKIES":    "auth.secure_cookies",
	"ISSUEDESK_ALLOW_ANONYMOUS":   "auth.allow_anonymous",
	"ISSUEDESK_ANONYMOUS_ACCOUNT": "auth.anonymous_account",

	"ISSUEDESK_MAX_NAME_LENGTH":      "users.max_name_length",
	"ISSUEDESK_MAX_REAL_NAME_LENGTH": "users.max_real_name_length",
	"ISSUEDESK_REJECT_NUMERIC_NAMES": "users.reject_numeric_names",
	"ISSUEDESK_LANGUAGES":            "users.languages",
	"ISSUEDESK_DEFAULT_LANGUAGE":     "users.default_language",
	"ISSUEDESK_DEFAULT_TIMEZONE":     "users.default_timezone",

	"ISSUEDESK_DEFAULT_ACCESS_LEVEL": "access.default_level",
	"ISSUEDESK_VIEW_THRESHOLD":       "access.view_threshold",
	"ISSUEDESK_MANAGE_THRESHOLD":     "access.manage_threshold",
	"ISSUEDESK_PROTECTED_THRESHOLD":  "access.protected_threshold",

	"ISSUEDESK_DEFAULT_PROJECT": "projects.default_name",

	"ISSUEDESK_ADMIN_NAME":     "bootstrap.admin_name",
	"ISSUEDESK_ADMIN_PASSWORD": "bootstrap.admin_password",
}

// Load builds the configuration from defaults and the process environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "",
		TransformFunc: func(key, value string) (string, any) {
			// Unmapped variables get an empty key and are skipped.
			return envToPath[key], value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           &cfg,
			TagName:          "koanf",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	rules := c.Users.Rules()
	found := false
	for _, l := range rules.Languages {
		if l == rules.DefaultLanguage {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: users.default_language %q is not in users.languages", c.Users.DefaultLanguage)
	}

	if c.Access.ManageThreshold < c.Access.ViewThreshold {
		return fmt.Errorf("config: access.manage_threshold (%d) is below access.view_threshold (%d)",
			c.Access.ManageThreshold, c.Access.ViewThreshold)
	}
	return nil
}
