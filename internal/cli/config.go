package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/decisio/internal/llm"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Decisio configuration",
	Long: `Manage Decisio configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (DECISIO_*)
3. Config file (~/.decisio/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration after defaults, config file, env vars and flags are applied.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		out := newPrinter(os.Stdout)
		out.Banner("Current Configuration")

		// API keys are tagged out of the YAML form
		yamlData, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Println(string(yamlData))

		fmt.Println(rule)
		fmt.Println()
		fmt.Println("API keys:")
		fmt.Printf("  reasoner (%s):  %s\n", cfg.LLM.Provider, keyState(cfg.LLM.Provider == "ollama", cfg.LLM.APIKey))
		fmt.Printf("  search (%s):    %s\n", cfg.Search.Provider, keyState(false, searchKey(cfg.Search.Provider)))
		fmt.Println()
		fmt.Println("Configuration hierarchy (highest to lowest priority):")
		fmt.Println("  1. CLI flags")
		fmt.Println("  2. Environment variables (DECISIO_*, OPENAI_API_KEY, ANTHROPIC_API_KEY, TAVILY_API_KEY, SERPER_API_KEY)")
		fmt.Println("  3. Config file (~/.decisio/config.yaml)")
		fmt.Println("  4. Defaults")
		fmt.Println()

		return nil
	},
}

func keyState(notNeeded bool, key string) string {
	switch {
	case notNeeded:
		return "not required"
	case key == "":
		return "missing"
	default:
		return "set"
	}
}

func searchKey(provider string) string {
	switch provider {
	case "serper":
		return os.Getenv("SERPER_API_KEY")
	default:
		return os.Getenv("TAVILY_API_KEY")
	}
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.decisio/config.yaml with every available option.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configDir := filepath.Join(home, ".decisio")
		configPath := filepath.Join(configDir, "config.yaml")

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file already exists: %s\nUse 'decisio config show' to view it, or delete it first to recreate", configPath)
		}

		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("error creating config directory: %w", err)
		}

		yamlData, err := yaml.Marshal(model.DefaultConfig())
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}

		f, err := os.Create(configPath)
		if err != nil {
			return fmt.Errorf("error creating config file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close config file: %w", closeErr)
			}
		}()

		// Helper for writing with error checking
		printf := func(format string, a ...any) {
			if err != nil {
				return
			}
			_, err = fmt.Fprintf(f, format, a...)
		}

		printf("# Decisio Configuration File\n")
		printf("#\n")
		printf("# Configuration hierarchy (highest to lowest priority):\n")
		printf("#   1. CLI flags\n")
		printf("#   2. Environment variables (DECISIO_*)\n")
		printf("#   3. This config file\n")
		printf("#   4. Built-in defaults\n\n")
		printf("%s", yamlData)
		printf("\n# API keys are read from the environment only:\n")
		printf("#   export OPENAI_API_KEY=sk-...\n")
		printf("#   export ANTHROPIC_API_KEY=sk-ant-...\n")
		printf("#   export OLLAMA_BASE_URL=http://localhost:11434\n")
		printf("#   export TAVILY_API_KEY=tvly-...\n")
		printf("#   export SERPER_API_KEY=...\n")
		if err != nil {
			return fmt.Errorf("error writing config: %w", err)
		}

		out := newPrinter(os.Stdout)
		out.Success("Created default configuration: %s", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  decisio config show\n")
		fmt.Printf("\nTo customize, edit the file with your preferred editor:\n")
		fmt.Printf("  $EDITOR %s\n\n", configPath)

		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the configuration and the reasoner connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := newPrinter(os.Stdout)
		out.Success("Configuration is valid")

		reasoner, err := llm.NewReasoner(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
		if err != nil {
			return fmt.Errorf("reasoner: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := reasoner.Check(ctx); err != nil {
			out.Failure("Reasoner %s: %v", reasoner.ProviderName(), err)
			return fmt.Errorf("reasoner check failed")
		}
		out.Success("Reasoner %s is reachable", reasoner.ProviderName())

		if searchKey(cfg.Search.Provider) == "" && cfg.Search.APIKey == "" {
			out.Warning("no API key for search provider %s", cfg.Search.Provider)
		} else {
			out.Success("Search provider %s has an API key", cfg.Search.Provider)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}
