package cmd

import (
	"os"
	"strings"

	"github.com/groupfi/treasury-engine/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "treasury-engine",
	Short: "Pooled treasury ledger and swap settlement engine for group trading",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "treasury", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "treasury", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL ssl mode`)

	rootCmd.PersistentFlags().String(config.AggregatorBaseUrl, "", `Swap aggregator base url (defaults to the public 1inch API)`)
	rootCmd.PersistentFlags().String(config.AggregatorApiKey, "", `Swap aggregator API key`)

	rootCmd.PersistentFlags().String(config.ExplorerApiKey, "", `Block explorer API key, shared across chains`)

	rootCmd.PersistentFlags().String(config.KeystorePassphrase, "", `Passphrase protecting custodial keys (required)`)

	rootCmd.PersistentFlags().String(config.ChainRegistryPath, "", `Path to a YAML chain registry overriding the compiled-in chains`)

	rootCmd.PersistentFlags().Int(config.HttpPort, 7400, `HTTP API port`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	rootCmd.PersistentFlags().Int(config.SettlementBroadcastRetries, 3, `Broadcast attempts before a trade is rejected`)
	rootCmd.PersistentFlags().Duration(config.SettlementConfirmationTimeout, 0, `Bounded wait for a transaction receipt (0 uses the default)`)
	rootCmd.PersistentFlags().Duration(config.SettlementReceiptPollInterval, 0, `Delay between receipt polls (0 uses the default)`)

	rootCmd.PersistentFlags().String(config.CommentaryApiKey, "", `OpenRouter API key; empty disables trade commentary`)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runVersionCmd)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}
