package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/islamcheck/internal/logging"
	"github.com/ppiankov/islamcheck/internal/model"
)

// Version is stamped at build time with -ldflags "-X .../cli.Version=..."
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "islamcheck",
	Short: "Islamic claim fact-checker",
	Long: `islamcheck analyses short claims about Islam with an LLM and returns an
answer, cited sources, and one of four classifications:
Accurate, Misleading, False or Debated.

Results are cached in SQLite for 24 hours and published through a small
HTTP API with history, permalinks and a sitemap.`,
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
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("islamcheck %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.islamcheck/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("storage.path", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and ISLAMCHECK_* variables
func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".islamcheck"))
		}
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("ISLAMCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), model.DefaultConfig())

	// Names used by existing deployments
	_ = viper.BindEnv("upstream.api_key", "ISLAMCHECK_UPSTREAM_API_KEY", "OPENROUTER_API_KEY")
	_ = viper.BindEnv("storage.path", "ISLAMCHECK_STORAGE_PATH", "DATABASE_PATH")
	_ = viper.BindEnv("server.port", "ISLAMCHECK_SERVER_PORT", "PORT")

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// settings flattens cfg into viper keys
func settings(d *model.Config) map[string]any {
	return map[string]any{
		"server.host":            d.Server.Host,
		"server.port":            d.Server.Port,
		"server.public_url":      d.Server.PublicURL,
		"server.debug":           d.Server.Debug,
		"server.max_connections": d.Server.MaxConnections,
		"server.read_timeout":    d.Server.ReadTimeout,
		"server.write_timeout":   d.Server.WriteTimeout,
		"server.page_max_age":    d.Server.PageMaxAge,

		"upstream.provider":            d.Upstream.Provider,
		"upstream.model":               d.Upstream.Model,
		"upstream.api_key":             d.Upstream.APIKey,
		"upstream.base_url":            d.Upstream.BaseURL,
		"upstream.referer":             d.Upstream.Referer,
		"upstream.title":               d.Upstream.Title,
		"upstream.timeout":             d.Upstream.Timeout,
		"upstream.max_tokens":          d.Upstream.MaxTokens,
		"upstream.max_attempts":        d.Upstream.MaxAttempts,
		"upstream.initial_backoff":     d.Upstream.InitialBackoff,
		"upstream.jitter":              d.Upstream.Jitter,
		"upstream.requests_per_second": d.Upstream.RequestsPerSecond,
		"upstream.burst":               d.Upstream.Burst,
		"upstream.http_proxy":          d.Upstream.HTTPProxy,
		"upstream.https_proxy":         d.Upstream.HTTPSProxy,
		"upstream.no_proxy":            d.Upstream.NoProxy,

		"storage.path": d.Storage.Path,

		"cache.enabled":          d.Cache.Enabled,
		"cache.ttl":              d.Cache.TTL,
		"cache.cleanup_interval": d.Cache.CleanupInterval,

		"search.enabled":    d.Search.Enabled,
		"search.index_path": d.Search.IndexPath,

		"factcheck.max_claim_length": d.FactCheck.MaxClaimLength,
		"factcheck.workers":          d.FactCheck.Workers,

		"logging.level":  d.Logging.Level,
		"logging.format": d.Logging.Format,
	}
}

// setDefaults registers every key so env variables reach Unmarshal
func setDefaults(v *viper.Viper, d *model.Config) {
	for key, value := range settings(d) {
		v.SetDefault(key, value)
	}
}

// loadConfig resolves the effective configuration
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", model.ErrConfiguration, errors.Join(errs...))
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the zap global
func newLogger(cfg *model.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
