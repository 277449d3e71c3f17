// Package cli implements the pagechat command line.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/logging"
)

var (
	cfgFile        string
	envFile        string
	logLevel       string
	logFormat      string
	jsonOutput     bool
	jsonlOutput    bool
	verbose        bool
	nonInteractive bool

	appConfig *config.Config
	logCloser io.Closer

	stdOut io.Writer = os.Stdout
	errOut io.Writer = os.Stderr

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "pagechat",
	Short: "Work a Facebook Page inbox from the terminal",
	Long: `pagechat keeps a Facebook Page's Messenger inbox current by polling the
Graph API and lets an operator read and answer conversations from the
terminal. It also includes a chat with a generative assistant.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return initConfig()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
			logCloser = nil
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/pagechat/config.yaml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment (empty to disable)")
	flags.StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output in JSON Lines format")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "never prompt or start the TUI")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := map[string]string{"version": version, "commit": commit, "date": date}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), info)
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "pagechat %s (%s, %s)\n", version, commit, date)
		return err
	},
}

// SetVersion records build information for the version command.
func SetVersion(v, c, d string) {
	version, commit, date = v, c, d
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(errOut, err)
	}
	return err
}

func initConfig() error {
	loader := config.NewLoader()
	loader.SetEnvFile(envFile)
	if cfgFile != "" {
		loader.SetConfigFile(cfgFile)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if verbose && logLevel == "" {
		cfg.Logging.Level = "debug"
	}

	closer, err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if err != nil {
		return err
	}
	logCloser = closer

	if used := loader.ConfigFileUsed(); used != "" {
		logging.Debug().Str("path", used).Msg("loaded config file")
	}

	appConfig = cfg
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool { return jsonOutput }

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool { return jsonlOutput }

// IsVerbose reports whether --verbose was given.
func IsVerbose() bool { return verbose }

// IsNonInteractive reports whether prompts and the TUI are disabled.
func IsNonInteractive() bool {
	return nonInteractive || !hasTTY()
}

// WriteOutput writes v as JSON, one line per element in JSONL mode.
func WriteOutput(out io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONL(out, v)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return enc.Encode(json.RawMessage(data))
	}
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return err
		}
	}
	return nil
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// PreflightError is a usage problem with a suggested fix.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	return e.Message
}

func printError(out io.Writer, err error) {
	if IsJSONOutput() || IsJSONLOutput() {
		_ = json.NewEncoder(out).Encode(map[string]string{"error": err.Error()})
		return
	}

	var preflight *PreflightError
	if errors.As(err, &preflight) {
		fmt.Fprintf(out, "Error: %s\n", preflight.Message)
		if preflight.Hint != "" {
			fmt.Fprintf(out, "Hint: %s\n", preflight.Hint)
		}
		if preflight.NextStep != "" {
			fmt.Fprintf(out, "Try: %s\n", preflight.NextStep)
		}
		return
	}
	fmt.Fprintf(out, "Error: %s\n", strings.TrimSpace(err.Error()))
}
