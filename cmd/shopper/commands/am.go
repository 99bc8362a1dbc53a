package commands

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/shopper/am"
	"github.com/teranos/shopper/display"
	"github.com/teranos/shopper/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage shopper configuration",
	Long: `Display and validate shopper configuration.

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/shopper/config.toml)
3. User config (~/.shopper/config.toml)
4. Project config (./shopper.toml or ./config.toml, searched up the tree)
5. --config file
6. Environment variables (SHOPPER_* prefix)

Examples:
  shopper am show                    # Show current configuration
  shopper am show --format json      # Show configuration as JSON
  shopper am validate                # Validate current configuration
  shopper am where                   # List the config files that were checked`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	var data []byte
	switch configFormat {
	case "json":
		return display.OutputJSON(cfg)
	case "yaml":
		data, err = yaml.Marshal(cfg)
	case "toml":
		data, err = toml.Marshal(cfg)
	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to marshal config to %s", configFormat)
	}

	fmt.Printf("# shopper configuration\n%s", string(data))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	fmt.Println("Configuration cascade (later overrides earlier):")
	for i, path := range am.ConfigPaths() {
		status := pterm.Gray("missing")
		if _, err := os.Stat(path); err == nil {
			status = pterm.Green("found")
		}
		fmt.Printf("  %d. %s  %s\n", i+1, path, status)
	}
	fmt.Println("  +  SHOPPER_* environment variables")
	return nil
}
