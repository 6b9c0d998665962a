package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groupfi/treasury-engine/internal/config"
	"github.com/groupfi/treasury-engine/internal/logger"
	"github.com/groupfi/treasury-engine/internal/metrics"
	"github.com/groupfi/treasury-engine/internal/version"
	"github.com/groupfi/treasury-engine/pkg/api"
	"github.com/groupfi/treasury-engine/pkg/chains"
	"github.com/groupfi/treasury-engine/pkg/clients/ethereum"
	"github.com/groupfi/treasury-engine/pkg/clients/explorer"
	"github.com/groupfi/treasury-engine/pkg/clients/geckoterminal"
	"github.com/groupfi/treasury-engine/pkg/clients/oneinch"
	"github.com/groupfi/treasury-engine/pkg/clients/openrouter"
	"github.com/groupfi/treasury-engine/pkg/keystore"
	"github.com/groupfi/treasury-engine/pkg/ledger/ledgerStore"
	"github.com/groupfi/treasury-engine/pkg/postgres"
	"github.com/groupfi/treasury-engine/pkg/settlement"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the treasury engine",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.NewConfig()

		l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
		if err != nil {
			panic(err)
		}
		defer l.Sync() //nolint:errcheck

		l.Sugar().Infow("treasury-engine",
			zap.String("version", version.GetVersion()),
			zap.String("commit", version.GetCommit()),
		)

		registry := chains.DefaultRegistry()
		if cfg.ChainRegistryPath != "" {
			registry, err = chains.LoadRegistry(cfg.ChainRegistryPath)
			if err != nil {
				l.Sugar().Fatalw("Failed to load chain registry", zap.Error(err))
			}
		}

		metricsClient, err := metrics.NewMetricsClient(cfg, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup metrics client", zap.Error(err))
		}
		if cfg.PrometheusConfig.Enabled {
			metrics.StartPrometheusServer(cfg, l)
		}

		pgConfig := postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig)
		pg, err := postgres.NewPostgres(pgConfig)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup postgres connection", zap.Error(err))
		}
		grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
		if err != nil {
			l.Sugar().Fatalw("Failed to create gorm instance", zap.Error(err))
		}
		store, err := ledgerStore.NewStore(grm, l)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup ledger store", zap.Error(err))
		}

		keys, err := keystore.NewKeystore(cfg.KeystorePassphrase)
		if err != nil {
			l.Sugar().Fatalw("Failed to setup keystore", zap.Error(err))
		}

		aggregator := oneinch.NewClient(cfg.AggregatorConfig.BaseUrl, cfg.AggregatorConfig.ApiKey, l)
		locator := explorer.NewLocator(registry, cfg.ExplorerApiKey, l)

		newGateway := func(chain chains.Chain) settlement.ChainGateway {
			return ethereum.NewClient(&ethereum.EthereumClientConfig{
				BaseUrl:             chain.RPCEndpoint,
				ChainID:             chain.ID,
				NativeDecimals:      chain.NativeDecimals,
				ReceiptWaitTimeout:  cfg.SettlementConfig.ConfirmationTimeout,
				ReceiptPollInterval: cfg.SettlementConfig.ReceiptPollInterval,
			}, l)
		}

		engine := settlement.NewEngine(
			registry,
			newGateway,
			aggregator,
			locator,
			keys,
			store,
			metricsClient,
			&cfg.SettlementConfig,
			l,
		)
		if cfg.CommentaryApiKey != "" {
			engine.WithCommentator(openrouter.NewClient("", cfg.CommentaryApiKey, "", l))
			engine.WithPoolLookup(geckoterminal.NewClient("", l))
		}

		server := api.NewServer(engine, metricsClient, cfg.HttpPort, l)
		if err := server.Start(); err != nil {
			l.Sugar().Fatalw("HTTP server exited", zap.Error(err))
		}
	},
}
