// internal/cli/root.go
package semsearch

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/logging"
)

var (
	cfgFile       string
	envFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "semsearch",
	Short:        "semsearch: semantic search over your documents",
	Long:         `semsearch splits documents into chunks, embeds them with Gemini or OpenAI, stores the vectors in Pinecone or SQLite, and answers similarity queries from the CLI, a terminal UI, or a web dashboard.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := appconfig.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg, err := appconfig.LoadInto(viper.GetViper(), cfgFile, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		currentConfig = &cfg

		logging.SetQuiet(!cfg.Debug)
		if err := logging.Init(cfg.LogFilePath()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	appconfig.SetDefaults(viper.GetViper())
	appconfig.BindEnv(viper.GetViper())

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")
	rootCmd.PersistentFlags().StringVar(&envFile, "envFile", appconfig.DefaultEnvFile, "dotenv file with API keys")

	rootCmd.PersistentFlags().Bool("debug", false, "echo log output to the terminal")
	rootCmd.PersistentFlags().String("logFile", "", "path to the log file")
	rootCmd.PersistentFlags().String("provider", "", "embedding provider (gemini or openai)")
	rootCmd.PersistentFlags().String("model", "", "embedding model")
	rootCmd.PersistentFlags().String("backend", "", "vector store backend (pinecone or sqlite)")
	rootCmd.PersistentFlags().String("index", "", "vector index name")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("logFile", rootCmd.PersistentFlags().Lookup("logFile"))
	_ = viper.BindPFlag("embedding.provider", rootCmd.PersistentFlags().Lookup("provider"))
	_ = viper.BindPFlag("embedding.model", rootCmd.PersistentFlags().Lookup("model"))
	_ = viper.BindPFlag("vectorStore.backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("vectorStore.indexName", rootCmd.PersistentFlags().Lookup("index"))
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}
