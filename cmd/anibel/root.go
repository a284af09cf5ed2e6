package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bielarusajed/anibel-dl/internal/config"
)

// cliOptions regroupe les flags globaux partagés par toutes les commandes.
type cliOptions struct {
	config  string
	server  string
	timeout time.Duration
	json    bool
}

func (o *cliOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "anibel",
		Short:         "Client du serveur anibel-dl",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.server != "" {
				return nil
			}
			// Sans --server: fichier de configuration, puis ANIBEL_SERVER, puis le défaut local.
			cfg, _, err := config.Load(opts.config)
			if err != nil {
				return err
			}
			opts.server = cfg.Server
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.config, "config", "c", os.Getenv("ANIBEL_CONFIG"), "Fichier TOML de configuration")
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", "", "URL du serveur (défaut: configuration)")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Timeout HTTP")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Sortie JSON brute")

	rootCmd.AddCommand(newHealthCommand(opts))
	rootCmd.AddCommand(newVersionCommand(opts))
	rootCmd.AddCommand(newInfoCommand(opts))
	rootCmd.AddCommand(newDownloadCommand(opts))
	rootCmd.AddCommand(newJobsCommand(opts))
	rootCmd.AddCommand(newDownloadsCommand(opts))
	rootCmd.AddCommand(newSettingsCommand(opts))
	rootCmd.AddCommand(newFetchCommand(opts))

	return rootCmd
}
