package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/islamcheck/internal/model"
)

var initPath string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage islamcheck configuration",
	Long: `Manage islamcheck configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (ISLAMCHECK_*, OPENROUTER_API_KEY, DATABASE_PATH, PORT)
3. Config file (~/.islamcheck/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration after merging defaults, config file, environment and flags. The API key is redacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults and environment)\n\n")
		}

		redacted := cfg.Redacted()
		out, err := renderConfig(&redacted)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long:  `Create a configuration file with every option at its default value. The default location is ~/.islamcheck/config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		path := initPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("error finding home directory: %w", err)
			}
			path = filepath.Join(home, ".islamcheck", "config.yaml")
		}

		if _, statErr := os.Stat(path); statErr == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'islamcheck config show' to view it, or delete it first to recreate", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		body, err := renderConfig(model.DefaultConfig())
		if err != nil {
			return err
		}

		var b strings.Builder
		b.WriteString("# islamcheck configuration\n")
		b.WriteString("#\n")
		b.WriteString("# Configuration hierarchy (highest to lowest priority):\n")
		b.WriteString("#   1. CLI flags\n")
		b.WriteString("#   2. Environment variables (ISLAMCHECK_SECTION_KEY, e.g. ISLAMCHECK_SERVER_PORT)\n")
		b.WriteString("#   3. This config file\n")
		b.WriteString("#   4. Built-in defaults\n")
		b.WriteString("#\n")
		b.WriteString("# Keep the API key out of this file:\n")
		b.WriteString("#   export OPENROUTER_API_KEY=sk-or-...\n\n")
		b.WriteString(body)

		if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		fmt.Printf("✓ Created default configuration: %s\n", path)
		fmt.Printf("\nTo view the effective configuration:\n")
		fmt.Printf("  islamcheck config show\n")
		return nil
	},
}

// renderConfig formats cfg as sectioned YAML with durations in Go notation
func renderConfig(cfg *model.Config) (string, error) {
	sections := map[string]map[string]any{}
	for key, value := range settings(cfg) {
		section, name, _ := strings.Cut(key, ".")
		if sections[section] == nil {
			sections[section] = map[string]any{}
		}
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		sections[section][name] = value
	}

	out, err := yaml.Marshal(sections)
	if err != nil {
		return "", fmt.Errorf("error marshaling config: %w", err)
	}
	return string(out), nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().StringVar(&initPath, "path", "", "write the file here instead of ~/.islamcheck/config.yaml")
}
