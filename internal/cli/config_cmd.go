package cli

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/logging"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print the effective configuration after defaults, config file, .env and environment are merged. Secrets are redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		view := redactedConfig(GetConfig())
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), view)
		}
		return writeYAML(cmd.OutOrStdout(), view)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the data and config locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		paths := map[string]string{
			"config_dir": cfg.Global.ConfigDir,
			"data_dir":   cfg.Global.DataDir,
			"database":   cfg.DatabasePath(),
			"context":    cfg.ContextPath(),
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), paths)
		}
		rows := [][]string{
			{"config_dir", paths["config_dir"]},
			{"data_dir", paths["data_dir"]},
			{"database", paths["database"]},
			{"context", paths["context"]},
		}
		return writeTable(cmd.OutOrStdout(), nil, rows)
	},
}

// redactedConfig renders cfg as nested maps keyed by yaml names, with
// durations in their string form and secrets replaced.
func redactedConfig(cfg *config.Config) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	out, _ := displayValue(reflect.ValueOf(*cfg), "").(map[string]any)
	return out
}

var durationType = reflect.TypeOf(time.Duration(0))

func displayValue(v reflect.Value, field string) any {
	if field != "" && v.Kind() == reflect.String && logging.IsSensitiveField(field) {
		if v.String() == "" {
			return ""
		}
		return logging.RedactedValue
	}

	if v.Type() == durationType {
		return time.Duration(v.Int()).String()
	}

	switch v.Kind() {
	case reflect.Struct:
		out := make(map[string]any, v.NumField())
		for i := 0; i < v.NumField(); i++ {
			f := v.Type().Field(i)
			if !f.IsExported() {
				continue
			}
			name := yamlName(f)
			if name == "-" {
				continue
			}
			out[name] = displayValue(v.Field(i), name)
		}
		return out
	case reflect.Slice:
		items := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			items = append(items, displayValue(v.Index(i), ""))
		}
		return items
	case reflect.String:
		return logging.Redact(v.String())
	default:
		return v.Interface()
	}
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" {
		return strings.ToLower(f.Name)
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}
