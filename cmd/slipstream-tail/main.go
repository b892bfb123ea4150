// slipstream-tail follows a results or alerts topic and prints one line per
// judgement, colouring flagged records.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/segmentio/kafka-go"

	"github.com/slipstream/slipstream/pkg/models"
)

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic := flag.String("topic", "alerts", "topic to follow (anomalies or alerts)")
	group := flag.String("group", "slipstream-tail", "consumer group id")
	flag.Parse()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     strings.Split(*brokers, ","),
		Topic:       *topic,
		GroupID:     *group,
		StartOffset: kafka.LastOffset,
	})
	defer reader.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Following %s on %s (ctrl-c to stop)\n", *topic, *brokers)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("read failed: %v", err)
			continue
		}

		var result models.AnomalyResult
		if err := json.Unmarshal(msg.Value, &result); err != nil {
			log.Printf("skipping undecodable record: %v", err)
			continue
		}

		color, verdict := colorGreen, "ok"
		if result.IsAnomaly {
			color, verdict = colorRed, strings.ToUpper(string(result.AnomalyType))
		}
		fmt.Printf("%s%-20s score=%.3f conf=%.2f %s%s  %s\n",
			color, result.TransactionID, result.AnomalyScore, result.Confidence,
			verdict, colorReset, result.Reason)
	}
}
