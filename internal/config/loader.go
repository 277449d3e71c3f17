package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the loader reads, e.g.
// PAGECHAT_GRAPH_PAGE_ID for graph.page_id.
const EnvPrefix = "PAGECHAT"

// legacyEnv maps config keys to the variable names the browser build used.
// The PAGECHAT_* name wins when both are set.
var legacyEnv = map[string]string{
	"graph.page_id":      "VITE_FB_PAGE_ID",
	"graph.access_token": "VITE_FB_PAGE_ACCESS_TOKEN",
	"assistant.api_key":  "VITE_GOOGLE_API_KEY",
}

// Loader reads configuration with this precedence, lowest first:
// defaults, config file, dotenv file, environment.
type Loader struct {
	v          *viper.Viper
	configFile string
	envFile    string
}

// NewLoader creates a loader that reads ./.env and searches the standard
// config locations.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), envFile: ".env"}
}

// SetConfigFile sets an explicit config file path. A missing explicit file
// is an error; a missing discovered file is not.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetEnvFile sets the dotenv file read before environment bindings. An
// empty path disables dotenv loading.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load resolves, expands and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	l.bindKeys(cfg)
	if err := l.readConfigFile(); err != nil {
		return nil, err
	}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	expandPaths(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadEnvFile exports the dotenv file. Variables already set keep their value.
func (l *Loader) loadEnvFile() error {
	if l.envFile == "" {
		return nil
	}
	err := godotenv.Load(l.envFile)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
}

// bindKeys registers a default and environment variables for every scalar
// setting in cfg. Lists such as auth.operators come from the file only.
func (l *Loader) bindKeys(cfg *Config) {
	for key, value := range settingKeys(reflect.ValueOf(cfg).Elem(), "") {
		l.v.SetDefault(key, value)
		names := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		_ = l.v.BindEnv(append([]string{key}, names...)...)
	}
}

// settingKeys flattens a config struct into dotted mapstructure keys.
func settingKeys(v reflect.Value, prefix string) map[string]any {
	keys := make(map[string]any)
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		name := field.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		if prefix != "" {
			name = prefix + "." + name
		}
		value := v.Field(i)
		switch value.Kind() {
		case reflect.Struct:
			for k, val := range settingKeys(value, name) {
				keys[k] = val
			}
		case reflect.Slice, reflect.Map:
		default:
			keys[name] = value.Interface()
		}
	}
	return keys
}

func (l *Loader) readConfigFile() error {
	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			l.v.AddConfigPath(filepath.Join(xdg, "pagechat"))
		}
		if home, _ := os.UserHomeDir(); home != "" {
			l.v.AddConfigPath(filepath.Join(home, ".config", "pagechat"))
		}
		l.v.AddConfigPath(".")
	}

	err := l.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err == nil || (l.configFile == "" && errors.As(err, &notFound)) {
		return nil
	}
	return fmt.Errorf("failed to read config file: %w", err)
}

// expandPaths resolves a leading ~ in path settings.
func expandPaths(cfg *Config) {
	for _, p := range []*string{&cfg.Global.DataDir, &cfg.Global.ConfigDir, &cfg.Database.Path, &cfg.Logging.File} {
		*p = expandTilde(*p)
	}
}

func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}
