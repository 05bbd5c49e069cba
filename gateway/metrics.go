package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_gateway_events_total",
			Help: "Gateway payloads by shard and direction",
		},
		[]string{"shard", "direction"},
	)

	gatewayDispatchEventCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_dispatch_events_by_type_total",
			Help: "Sandwich Dispatch Events",
		},
		[]string{"type"},
	)

	gatewayLatency = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandwich_discord_gateway_latency",
			Help: "Sandwich Discord Gateway Latency",
		},
		[]string{"shard"},
	)

	gatewayShardStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sandwich_shard_status",
			Help: "Current ShardState of each shard",
		},
		[]string{"shard"},
	)

	gatewayReconnectCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_shard_reconnects_total",
			Help: "Shard reconnects by recovery kind",
		},
		[]string{"shard", "kind"},
	)

	gatewayHookFailureCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandwich_dispatch_hook_failures_total",
			Help: "Dispatch hooks that returned an error or panicked",
		},
		[]string{"name"},
	)
)

// Collectors returns the gateway metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		gatewayEventCount,
		gatewayDispatchEventCount,
		gatewayLatency,
		gatewayShardStatus,
		gatewayReconnectCount,
		gatewayHookFailureCount,
	}
}

func shardLabel(shardID int32) string {
	return strconv.Itoa(int(shardID))
}
