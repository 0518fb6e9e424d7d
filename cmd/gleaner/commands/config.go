package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/config"
)

// ConfigCmd represents the config command - layered configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gleaner configuration",
	Long: `Manage gleaner configuration.

Configuration sources (in order of precedence):
1. Environment variables (GLEANER_* prefix)
2. Project config (gleaner.toml, found searching up from the cwd)
3. User config (~/.config/gleaner/config.toml)
4. System config (/etc/gleaner/config.toml)
5. Default values

Examples:
  gleaner config list                      # Every setting and where it came from
  gleaner config get pipeline.workers     # One value
  gleaner config set pipeline.workers 8   # Persist to the user config
  gleaner config validate                  # Sanity-check the active config`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., paths.corpus_dir, pipeline.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value in the user config",
	Long: `Set a configuration value and persist it to the user config file.

Values are parsed by shape: true/false become booleans, digit strings
become integers, decimal strings become floats, everything else stays
a string. The previous user config is kept as a rolling backup.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every setting with its source",
	Long:  "List the flattened active configuration, annotating each setting with the layer that supplied it.",
	RunE:  runConfigList,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the active configuration",
	RunE:  runConfigValidate,
}

var configListFormat string

func init() {
	configListCmd.Flags().StringVar(&configListFormat, "format", "table", "Output format: table, toml, json")

	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configListCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	if _, err := config.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	v := config.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Println(config.Get(key))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, raw := args[0], args[1]

	value := config.ParseValue(raw)
	if err := config.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	fmt.Printf("Set %s = %v in %s\n", key, value, config.UserConfigPath())
	return nil
}

func runConfigList(cmd *cobra.Command, args []string) error {
	switch configListFormat {
	case "table":
		intro, err := config.GetConfigIntrospection()
		if err != nil {
			return fmt.Errorf("failed to inspect config: %w", err)
		}
		fmt.Printf("%-40s %-24s %s\n", "KEY", "VALUE", "SOURCE")
		fmt.Printf("%-40s %-24s %s\n", "---", "-----", "------")
		for _, s := range intro.Settings {
			value := fmt.Sprintf("%v", s.Value)
			if len(value) > 24 {
				value = value[:21] + "..."
			}
			source := string(s.Source)
			if s.SourcePath != "" && s.Source != config.SourceDefault {
				source = fmt.Sprintf("%s (%s)", s.Source, s.SourcePath)
			}
			fmt.Printf("%-40s %-24s %s\n", s.Key, value, source)
		}

	case "toml":
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# gleaner configuration\n%s", string(data))

	case "json":
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: table, toml, json)", configListFormat)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Println("✓ Configuration is valid")
	return nil
}
