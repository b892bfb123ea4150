package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Defaults for every recognised option.
const (
	DefaultBootstrapServers = "localhost:9092"
	DefaultInputTopic       = "transactions"
	DefaultOutputTopic      = "anomalies"
	DefaultAlertsTopic      = "alerts"
	DefaultGroupID          = "slipstream-anomaly-detector"
	DefaultNumThreads       = 1
	DefaultCommitIntervalMs = 5000
	DefaultDashboardPort    = 8080
	DefaultLogLevel         = "info"
	DefaultDetector         = "statistical"
)

// Config is the runtime configuration of the service, sourced from
// environment variables with sane defaults.
type Config struct {
	BootstrapServers []string
	InputTopic       string
	OutputTopic      string
	AlertsTopic      string
	GroupID          string
	NumThreads       int
	CommitInterval   time.Duration
	StateDir         string
	DashboardPort    int
	LogLevel         string
	Detector         string
}

// Load reads configuration from the environment. Invalid integer values fall
// back to their defaults with a logged warning; loading never fails.
func Load(logger *zap.Logger) *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("KAFKA_BOOTSTRAP_SERVERS", DefaultBootstrapServers)
	v.SetDefault("KAFKA_INPUT_TOPIC", DefaultInputTopic)
	v.SetDefault("KAFKA_OUTPUT_TOPIC", DefaultOutputTopic)
	v.SetDefault("KAFKA_ALERTS_TOPIC", DefaultAlertsTopic)
	v.SetDefault("KAFKA_GROUP_ID", DefaultGroupID)
	v.SetDefault("KAFKA_STATE_DIR", os.TempDir())
	v.SetDefault("LOG_LEVEL", DefaultLogLevel)
	v.SetDefault("SLIPSTREAM_DETECTOR", DefaultDetector)

	cfg := &Config{
		BootstrapServers: splitServers(v.GetString("KAFKA_BOOTSTRAP_SERVERS")),
		InputTopic:       v.GetString("KAFKA_INPUT_TOPIC"),
		OutputTopic:      v.GetString("KAFKA_OUTPUT_TOPIC"),
		AlertsTopic:      v.GetString("KAFKA_ALERTS_TOPIC"),
		GroupID:          v.GetString("KAFKA_GROUP_ID"),
		NumThreads:       intEnv(logger, "KAFKA_NUM_THREADS", DefaultNumThreads),
		StateDir:         v.GetString("KAFKA_STATE_DIR"),
		DashboardPort:    intEnv(logger, "DASHBOARD_PORT", DefaultDashboardPort),
		LogLevel:         v.GetString("LOG_LEVEL"),
		Detector:         v.GetString("SLIPSTREAM_DETECTOR"),
	}
	cfg.CommitInterval = time.Duration(intEnv(logger, "KAFKA_COMMIT_INTERVAL_MS", DefaultCommitIntervalMs)) * time.Millisecond

	if cfg.NumThreads < 1 {
		logger.Warn("KAFKA_NUM_THREADS must be positive, using default",
			zap.Int("value", cfg.NumThreads), zap.Int("default", DefaultNumThreads))
		cfg.NumThreads = DefaultNumThreads
	}

	logger.Info("configuration loaded",
		zap.Strings("bootstrap_servers", cfg.BootstrapServers),
		zap.String("input_topic", cfg.InputTopic),
		zap.String("output_topic", cfg.OutputTopic),
		zap.String("alerts_topic", cfg.AlertsTopic),
		zap.Int("num_threads", cfg.NumThreads),
		zap.String("state_dir", cfg.StateDir),
		zap.String("detector", cfg.Detector))

	return cfg
}

// intEnv parses an integer environment variable, falling back to the default
// (with a warning) on malformed input.
func intEnv(logger *zap.Logger, key string, def int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logger.Warn("invalid integer environment value, using default",
			zap.String("key", key), zap.String("value", raw), zap.Int("default", def))
		return def
	}
	return n
}

func splitServers(s string) []string {
	parts := strings.Split(s, ",")
	servers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			servers = append(servers, p)
		}
	}
	if len(servers) == 0 {
		servers = []string{DefaultBootstrapServers}
	}
	return servers
}
