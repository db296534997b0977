package main

import (
	"os"

	"dashshot/internal/config"
	"dashshot/internal/logger"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "dashshot",
	Short:         "Captures dashboard screenshots from recorded browser sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configFile != "" {
			cfg, err = config.LoadConfigFile(configFile)
		} else {
			cfg, err = config.LoadConfig()
		}
		if err != nil {
			return err
		}
		logger.Init(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (default $DASHSHOT_CONFIG)")
	rootCmd.AddCommand(serveCmd, workerCmd, compileCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("❌ Command failed")
		os.Exit(1)
	}
}
