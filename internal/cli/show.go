package semsearch

import (
	"github.com/spf13/cobra"

	"github.com/mwiater/semsearch/internal/appconfig"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show configuration details",
}

// showConfigCmd implements the 'show config' command, which displays the current configuration settings.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overridden by flags and SEMSEARCH_* variables accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		file := ""
		if cfg := GetConfig(); cfg != nil {
			file = cfg.ConfigPath
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), file, GetConfig())
	},
}

func init() {
	showCmd.AddCommand(showConfigCmd)
	rootCmd.AddCommand(showCmd)
}
