package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/decisio/internal/logging"
	"github.com/ppiankov/decisio/internal/model"
	"github.com/ppiankov/decisio/internal/pipeline"
	"github.com/ppiankov/decisio/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const version = "decisio v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logFile   string
	storePath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "decisio",
	Short: "Decisio - evidence-backed answers to decision questions",
	Long: `Decisio turns a decision question into a recommendation backed by
ranked sources.

It splits the question into research questions, searches the web, extracts
claims from the pages it finds, ranks the sources, looks for conflicts and
unknowns in the evidence and asks you about the ones that matter before it
drafts a recommendation.

Decisio reports what its sources say. It is not an oracle.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Decisio.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.decisio/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write the operator log to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "session database path (default: $HOME/.decisio/sessions.db)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store"))

	rootCmd.AddCommand(versionCmd)
}

// envKeys are the settings overridable through DECISIO_* without a config file
var envKeys = []string{
	"llm.provider", "llm.model", "llm.base_url",
	"search.provider", "store.driver", "store.path", "cache.dir",
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(filepath.Join(home, ".decisio"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// DECISIO_LLM_PROVIDER overrides llm.provider
	viper.SetEnvPrefix("DECISIO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig layers the config file, DECISIO_* variables and flags over
// the defaults, then fills secrets from the environment
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(cfg)

	home, err := os.UserHomeDir()
	if err == nil {
		if cfg.Store.Path == "" {
			cfg.Store.Path = filepath.Join(home, ".decisio", "sessions.db")
		}
		if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
			cfg.Cache.Dir = filepath.Join(home, ".decisio", "cache")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv reads API keys, which never live in the config file
func applyEnv(cfg *model.Config) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
}

// app holds what every command that touches sessions needs
type app struct {
	config *model.Config
	log    *logging.Logger
	store  store.SessionStore
	engine *pipeline.Engine
	out    *printer
}

// newApp loads configuration and opens the store. The engine is only
// wired when withEngine is set, so read-only commands work without API keys.
// With progress set every persisted transition is reported on stderr.
func newApp(withEngine, progress bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, out: newPrinter(os.Stderr)}
	if logFile != "" {
		if a.log, err = logging.NewFile(logFile, cfg.Output.Verbose); err != nil {
			return nil, err
		}
	} else if cfg.Output.Verbose {
		a.log = logging.New(os.Stderr, true)
	}

	if a.store, err = store.Open(cfg.Store); err != nil {
		_ = a.log.Close()
		return nil, err
	}

	if withEngine {
		var onTransition func(*model.Session)
		if progress {
			onTransition = a.out.Progress()
		}
		if a.engine, err = pipeline.Build(cfg, a.store, a.log, onTransition); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// Close releases the store and the log file
func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.out.Warning("close store: %v", err)
	}
	_ = a.log.Close()
}
