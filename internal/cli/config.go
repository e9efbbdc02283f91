package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ylongwang2782/embedded-review/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage embedded-review configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration and source profile files",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(os.Stderr, "Config file already exists at %s\n", path)
		} else {
			if err := config.Save(config.Default()); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Fprintf(os.Stdout, "Config file created at %s\n", path)
		}

		sourcesPath, err := config.SourcesPath("")
		if err != nil {
			return err
		}
		if _, err := os.Stat(sourcesPath); err == nil {
			fmt.Fprintf(os.Stderr, "Sources file already exists at %s\n", sourcesPath)
			return nil
		}
		if err := config.WriteSources(sourcesPath, config.DefaultSources()); err != nil {
			return fmt.Errorf("writing sources: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Sources file created at %s\n", sourcesPath)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Keys: " + strings.Join(config.Keys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ConfigPath()
		if err != nil {
			return err
		}
		cfg := config.Default()
		if _, statErr := os.Stat(path); statErr == nil {
			if cfg, err = config.LoadFile(); err != nil {
				return err
			}
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}

		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Fprintf(os.Stdout, "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(nil)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
