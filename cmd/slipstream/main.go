package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/slipstream/slipstream/internal/config"
	"github.com/slipstream/slipstream/internal/detector"
	"github.com/slipstream/slipstream/internal/monitoring"
	"github.com/slipstream/slipstream/internal/stream"
	"github.com/slipstream/slipstream/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	zapLogger, err := logger.NewLogger(logLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg := config.Load(zapLogger)

	collector := monitoring.NewCollector()

	det := buildDetector(cfg, zapLogger)
	zapLogger.Info("detector initialised", zap.String("variant", det.Name()),
		zap.Bool("online_learning", det.SupportsOnlineLearning()))

	dashboard := monitoring.NewDashboardServer(collector, zapLogger)
	if err := dashboard.Start(fmt.Sprintf(":%d", cfg.DashboardPort)); err != nil {
		zapLogger.Fatal("Failed to start dashboard server", zap.Error(err))
	}

	sources := make([]stream.Source, cfg.NumThreads)
	for i := range sources {
		sources[i] = stream.NewKafkaSource(stream.KafkaSourceConfig{
			Brokers:        cfg.BootstrapServers,
			Topic:          cfg.InputTopic,
			GroupID:        cfg.GroupID,
			CommitInterval: cfg.CommitInterval,
		}, zapLogger)
	}
	results := stream.NewKafkaSink(cfg.BootstrapServers, cfg.OutputTopic, zapLogger)
	alerts := stream.NewKafkaSink(cfg.BootstrapServers, cfg.AlertsTopic, zapLogger)

	pipeline := stream.NewPipeline(det, collector, sources, results, alerts, zapLogger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go reportLoop(ctx, collector, det, zapLogger)

	if err := pipeline.Run(ctx); err != nil {
		zapLogger.Fatal("Pipeline failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := dashboard.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("Dashboard shutdown failed", zap.Error(err))
	}

	zapLogger.Info("shutdown complete")
}

func buildDetector(cfg *config.Config, zapLogger *zap.Logger) detector.Detector {
	dcfg := detector.DefaultConfig()
	switch cfg.Detector {
	case "enhanced-ml", "enhanced":
		return detector.NewEnhancedDetector(dcfg, zapLogger, detector.SystemClock())
	case "statistical":
		return detector.NewStatisticalDetector(dcfg, zapLogger, detector.SystemClock())
	default:
		zapLogger.Warn("unknown detector variant, using statistical",
			zap.String("variant", cfg.Detector))
		return detector.NewStatisticalDetector(dcfg, zapLogger, detector.SystemClock())
	}
}

// reportLoop refreshes health gauges and logs engine state every 30 seconds.
func reportLoop(ctx context.Context, collector *monitoring.Collector, det detector.Detector, zapLogger *zap.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	type statsProvider interface {
		Stats() map[string]any
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.UpdateSystemHealth()
			fields := []zap.Field{
				zap.Int64("total_transactions", collector.Snapshot().TotalTransactions),
				zap.Float64("processing_rate", collector.ProcessingRate()),
			}
			if sp, ok := det.(statsProvider); ok {
				fields = append(fields, zap.Any("engine", sp.Stats()))
			}
			zapLogger.Info("pipeline metrics", fields...)
		}
	}
}
