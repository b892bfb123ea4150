package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load(zap.NewNop())

	assert.Equal(t, []string{"localhost:9092"}, cfg.BootstrapServers)
	assert.Equal(t, "transactions", cfg.InputTopic)
	assert.Equal(t, "anomalies", cfg.OutputTopic)
	assert.Equal(t, "alerts", cfg.AlertsTopic)
	assert.Equal(t, "slipstream-anomaly-detector", cfg.GroupID)
	assert.Equal(t, 1, cfg.NumThreads)
	assert.Equal(t, 5*time.Second, cfg.CommitInterval)
	assert.Equal(t, 8080, cfg.DashboardPort)
	assert.Equal(t, "statistical", cfg.Detector)
	assert.NotEmpty(t, cfg.StateDir)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "broker-1:9092, broker-2:9092")
	t.Setenv("KAFKA_INPUT_TOPIC", "txns-in")
	t.Setenv("KAFKA_OUTPUT_TOPIC", "scored")
	t.Setenv("KAFKA_ALERTS_TOPIC", "flagged")
	t.Setenv("KAFKA_NUM_THREADS", "4")
	t.Setenv("KAFKA_STATE_DIR", "/var/lib/slipstream")
	t.Setenv("KAFKA_COMMIT_INTERVAL_MS", "250")
	t.Setenv("SLIPSTREAM_DETECTOR", "enhanced-ml")

	cfg := Load(zap.NewNop())

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.BootstrapServers)
	assert.Equal(t, "txns-in", cfg.InputTopic)
	assert.Equal(t, "scored", cfg.OutputTopic)
	assert.Equal(t, "flagged", cfg.AlertsTopic)
	assert.Equal(t, 4, cfg.NumThreads)
	assert.Equal(t, "/var/lib/slipstream", cfg.StateDir)
	assert.Equal(t, 250*time.Millisecond, cfg.CommitInterval)
	assert.Equal(t, "enhanced-ml", cfg.Detector)
}

func TestLoad_InvalidIntegersFallBack(t *testing.T) {
	t.Setenv("KAFKA_NUM_THREADS", "not-a-number")
	t.Setenv("KAFKA_COMMIT_INTERVAL_MS", "5s")
	t.Setenv("DASHBOARD_PORT", "")

	cfg := Load(zap.NewNop())

	assert.Equal(t, DefaultNumThreads, cfg.NumThreads)
	assert.Equal(t, time.Duration(DefaultCommitIntervalMs)*time.Millisecond, cfg.CommitInterval)
	assert.Equal(t, DefaultDashboardPort, cfg.DashboardPort)
}

func TestLoad_NonPositiveThreadsFallBack(t *testing.T) {
	t.Setenv("KAFKA_NUM_THREADS", "0")
	cfg := Load(zap.NewNop())
	assert.Equal(t, DefaultNumThreads, cfg.NumThreads)

	t.Setenv("KAFKA_NUM_THREADS", "-3")
	cfg = Load(zap.NewNop())
	assert.Equal(t, DefaultNumThreads, cfg.NumThreads)
}
