package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the bridge.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Mailbox  MailboxConfig  `yaml:"mailbox"`
	Log      LogConfig      `yaml:"log"`
}

type TelegramConfig struct {
	Token        string     `yaml:"token"`
	AllowedUsers FlexIDList `yaml:"allowedUsers"`
	ParseMode    string     `yaml:"parseMode"`
}

type MailboxConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// ParseLevel maps a configured level string to a slog level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FlexIDList is a []int64 that unmarshals from a YAML sequence of numbers
// or quoted strings, or from a single comma-separated scalar.
type FlexIDList []int64

func (f *FlexIDList) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*f = nil
		return nil
	}
	switch node.Kind {
	case yaml.ScalarNode:
		ids, err := ParseUserIDs(node.Value)
		if err != nil {
			return err
		}
		*f = ids
		return nil
	case yaml.SequenceNode:
		out := make([]int64, 0, len(node.Content))
		for _, item := range node.Content {
			if item == nil || item.Kind != yaml.ScalarNode {
				return fmt.Errorf("allowedUsers entries must be scalars")
			}
			id, err := strconv.ParseInt(strings.TrimSpace(item.Value), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", item.Value)
			}
			out = append(out, id)
		}
		*f = out
		return nil
	default:
		return fmt.Errorf("allowedUsers must be a list or a comma-separated string")
	}
}

// Contains reports whether id is in the list.
func (f FlexIDList) Contains(id int64) bool {
	for _, v := range f {
		if v == id {
			return true
		}
	}
	return false
}

// ParseUserIDs parses a comma-separated list of numeric user ids
// (the TELEGRAM_ALLOWED_USERS environment form).
func ParseUserIDs(s string) (FlexIDList, error) {
	var ids FlexIDList
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			ParseMode: "Markdown",
		},
		Mailbox: MailboxConfig{
			Path: "agent.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path (if it exists), expands ${VAR} and
// ${VAR:-default} references, applies environment overrides, and validates.
// A missing file is not an error: the bridge can run from environment
// variables alone.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(ExpandPath(path))
	switch {
	case err == nil:
		expanded := []byte(ExpandEnvVars(string(data)))
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// env-only operation
	default:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Mailbox.Path = ExpandPath(cfg.Mailbox.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays the well-known environment variables onto cfg.
// Environment wins over the file.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_ALLOWED_USERS"); v != "" {
		ids, err := ParseUserIDs(v)
		if err != nil {
			return fmt.Errorf("TELEGRAM_ALLOWED_USERS: %w", err)
		}
		cfg.Telegram.AllowedUsers = ids
	}
	if v := os.Getenv("MAILBOX_DB_PATH"); v != "" {
		cfg.Mailbox.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Validate checks that the config is complete enough to start the bridge.
// All problems are reported together.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if len(cfg.Telegram.AllowedUsers) == 0 {
		errs = append(errs, "telegram.allowedUsers must contain at least one user id (or set TELEGRAM_ALLOWED_USERS)")
	}
	switch cfg.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
		// valid
	default:
		errs = append(errs, "telegram.parseMode must be one of: Markdown, MarkdownV2, HTML")
	}
	if cfg.Mailbox.Path == "" {
		errs = append(errs, "mailbox.path is required (or set MAILBOX_DB_PATH)")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// MaskToken shows the first 4 and last 4 characters of a credential,
// masking the rest. Used for startup logging.
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
