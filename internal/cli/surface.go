package cli

import (
	"cmp"
	"encoding/json"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func init() {
	rootCmd.AddCommand(commandsCmd)
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "Describe the command surface for scripts",
	Long:  "Print a short automation guide, or with --json a manifest of every command and flag.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !IsJSONOutput() && !IsJSONLOutput() {
			printRobotHelp(cmd.OutOrStdout())
			return nil
		}
		data, err := json.MarshalIndent(buildManifest(rootCmd), "", "  ")
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	},
}

// Manifest lists every visible command and flag of the CLI.
type Manifest struct {
	CLI         string            `json:"cli"`
	Version     string            `json:"version"`
	GlobalFlags []ManifestFlag    `json:"global_flags"`
	Commands    []ManifestCommand `json:"commands"`
}

// ManifestCommand describes one command and its children.
type ManifestCommand struct {
	Name        string            `json:"name"`
	Aliases     []string          `json:"aliases,omitempty"`
	Short       string            `json:"short"`
	Args        string            `json:"args,omitempty"`
	Flags       []ManifestFlag    `json:"flags,omitempty"`
	Subcommands []ManifestCommand `json:"subcommands,omitempty"`
}

// ManifestFlag describes one flag.
type ManifestFlag struct {
	Long    string `json:"long"`
	Short   string `json:"short,omitempty"`
	Type    string `json:"type"`
	Default string `json:"default,omitempty"`
	Usage   string `json:"usage,omitempty"`
}

func buildManifest(root *cobra.Command) Manifest {
	return Manifest{
		CLI:         root.Name(),
		Version:     version,
		GlobalFlags: describeFlags(root.PersistentFlags()),
		Commands:    describeChildren(root),
	}
}

func describeChildren(parent *cobra.Command) []ManifestCommand {
	var out []ManifestCommand
	for _, c := range parent.Commands() {
		if c.Hidden || c.Name() == "help" {
			continue
		}
		_, args, _ := strings.Cut(c.Use, " ")
		out = append(out, ManifestCommand{
			Name:        c.Name(),
			Aliases:     c.Aliases,
			Short:       c.Short,
			Args:        strings.TrimSpace(args),
			Flags:       describeFlags(c.LocalNonPersistentFlags()),
			Subcommands: describeChildren(c),
		})
	}
	slices.SortFunc(out, func(a, b ManifestCommand) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func describeFlags(set *pflag.FlagSet) []ManifestFlag {
	var out []ManifestFlag
	set.VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" {
			return
		}
		kind := f.Value.Type()
		if kind != "stringSlice" {
			kind = strings.ToLower(kind)
		}
		out = append(out, ManifestFlag{
			Long:    f.Name,
			Short:   f.Shorthand,
			Type:    kind,
			Default: f.DefValue,
			Usage:   f.Usage,
		})
	})
	slices.SortFunc(out, func(a, b ManifestFlag) int { return cmp.Compare(a.Long, b.Long) })
	return out
}
