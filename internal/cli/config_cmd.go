package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/fixfactory/internal/config"
	"github.com/lucasnoah/fixfactory/internal/prompt"
)

var templatesDir string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

var configTemplatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Write the built-in prompt templates out for editing",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := templatesDir
		if dir == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir = cfg.Oracle.TemplatesDir
		}

		written, err := prompt.InstallBuiltinTemplates(dir)
		if err != nil {
			return err
		}
		if len(written) == 0 {
			cmd.Printf("All templates already present in %s\n", dir)
			return nil
		}
		for _, name := range written {
			cmd.Printf("Wrote %s\n", name)
		}
		return nil
	},
}

func init() {
	configTemplatesCmd.Flags().StringVar(&templatesDir, "dir", "", "target directory (default: oracle.templates_dir)")
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configTemplatesCmd)
}
