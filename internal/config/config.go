package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ENV_PREFIX = "TREASURY"

// Viper/flag key names. Flags use kebab-case and dots; env vars are the
// TREASURY_ prefixed snake-case equivalents.
const (
	Debug = "debug"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db_name"
	DatabaseSchemaName = "database.schema_name"
	DatabaseSSLMode    = "database.ssl_mode"

	AggregatorBaseUrl = "aggregator.base-url"
	AggregatorApiKey  = "aggregator.api-key"

	ExplorerApiKey = "explorer.api-key"

	KeystorePassphrase = "keystore.passphrase"

	ChainRegistryPath = "chains.registry-path"

	HttpPort = "http.port"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	SettlementBroadcastRetries    = "settlement.broadcast-retries"
	SettlementConfirmationTimeout = "settlement.confirmation-timeout"
	SettlementReceiptPollInterval = "settlement.receipt-poll-interval"

	CommentaryApiKey = "commentary.api-key"
)

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	SSLMode    string
}

type AggregatorConfig struct {
	BaseUrl string
	ApiKey  string
}

type SettlementConfig struct {
	// BroadcastRetries bounds re-sends of a signed transaction when the
	// broadcast itself fails. Once a broadcast has been accepted the
	// transaction is never re-sent.
	BroadcastRetries    int
	ConfirmationTimeout time.Duration
	ReceiptPollInterval time.Duration
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type Config struct {
	Debug              bool
	DatabaseConfig     DatabaseConfig
	AggregatorConfig   AggregatorConfig
	ExplorerApiKey     string
	KeystorePassphrase string
	ChainRegistryPath  string
	HttpPort           int
	PrometheusConfig   PrometheusConfig
	SettlementConfig   SettlementConfig
	CommentaryApiKey   string
}

// NewConfig reads the already-bound viper keys into a typed Config.
func NewConfig() *Config {
	return &Config{
		Debug: viper.GetBool(normalizeFlagName(Debug)),

		DatabaseConfig: DatabaseConfig{
			Host:       viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:       viper.GetInt(normalizeFlagName(DatabasePort)),
			User:       viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:   viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:     viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName: viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:    viper.GetString(normalizeFlagName(DatabaseSSLMode)),
		},

		AggregatorConfig: AggregatorConfig{
			BaseUrl: viper.GetString(normalizeFlagName(AggregatorBaseUrl)),
			ApiKey:  viper.GetString(normalizeFlagName(AggregatorApiKey)),
		},

		ExplorerApiKey:     viper.GetString(normalizeFlagName(ExplorerApiKey)),
		KeystorePassphrase: viper.GetString(normalizeFlagName(KeystorePassphrase)),
		ChainRegistryPath:  viper.GetString(normalizeFlagName(ChainRegistryPath)),
		HttpPort:           viper.GetInt(normalizeFlagName(HttpPort)),

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},

		SettlementConfig: SettlementConfig{
			BroadcastRetries:    viper.GetInt(normalizeFlagName(SettlementBroadcastRetries)),
			ConfirmationTimeout: viper.GetDuration(normalizeFlagName(SettlementConfirmationTimeout)),
			ReceiptPollInterval: viper.GetDuration(normalizeFlagName(SettlementReceiptPollInterval)),
		},

		CommentaryApiKey: viper.GetString(normalizeFlagName(CommentaryApiKey)),
	}
}

// KebabToSnakeCase converts a flag name to the viper key it is bound under.
func KebabToSnakeCase(str string) string {
	str = strings.ReplaceAll(str, "-", "_")
	return strings.ReplaceAll(str, ".", "_")
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}
