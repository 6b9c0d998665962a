package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
	Flush()
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_TradeSettled     = "settlement_trade_settled"
	Metric_Incr_TradeFailed      = "settlement_trade_failed"
	Metric_Incr_DecodeGap        = "settlement_decode_gap"
	Metric_Incr_DepositCredited  = "settlement_deposit_credited"
	Metric_Incr_DepositDuplicate = "settlement_deposit_duplicate"
	Metric_Incr_HttpRequest      = "http_request"

	Metric_Gauge_GroupCount = "ledger_group_count"

	Metric_Timing_BuyDuration     = "settlement_buy_duration"
	Metric_Timing_SellDuration    = "settlement_sell_duration"
	Metric_Timing_DepositDuration = "settlement_deposit_duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_TradeSettled,
			Labels: []string{"side", "chain"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_TradeFailed,
			Labels: []string{"side", "chain", "stage"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_DecodeGap,
			Labels: []string{"chain"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_DepositCredited,
			Labels: []string{"chain"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_DepositDuplicate,
			Labels: []string{"chain"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_HttpRequest,
			Labels: []string{"method", "path", "status_code"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_GroupCount,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_BuyDuration,
			Labels: []string{"chain"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_SellDuration,
			Labels: []string{"chain"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_DepositDuration,
			Labels: []string{"chain"},
		},
	},
}
