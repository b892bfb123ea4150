// slipstream-gen produces demonstration transactions, mixing normal traffic
// with high-amount, velocity, location and late-night anomalies.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/slipstream/slipstream/pkg/models"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
)

var merchants = []string{
	"Amazon", "Walmart", "Target", "Starbucks", "McDonalds",
	"Shell", "Exxon", "CVS", "Walgreens", "Home Depot",
	"Best Buy", "Apple Store", "Netflix", "Spotify", "Uber",
}

var categories = []string{
	"retail", "grocery", "restaurant", "fuel", "pharmacy",
	"electronics", "entertainment", "transport",
}

var paymentMethods = []string{"credit_card", "debit_card", "mobile_wallet", "bank_transfer"}

var homeLocations = []models.Location{
	{Latitude: 40.7128, Longitude: -74.0060, Country: "USA", City: "New York"},
	{Latitude: 34.0522, Longitude: -118.2437, Country: "USA", City: "Los Angeles"},
	{Latitude: 41.8781, Longitude: -87.6298, Country: "USA", City: "Chicago"},
	{Latitude: 29.7604, Longitude: -95.3698, Country: "USA", City: "Houston"},
	{Latitude: 33.4484, Longitude: -112.0740, Country: "USA", City: "Phoenix"},
}

var farLocations = []models.Location{
	{Latitude: 55.7558, Longitude: 37.6173, Country: "Russia", City: "Moscow"},
	{Latitude: 6.5244, Longitude: 3.3792, Country: "Nigeria", City: "Lagos"},
	{Latitude: 44.4268, Longitude: 26.1025, Country: "Romania", City: "Bucharest"},
}

type generator struct {
	writer *kafka.Writer
	rng    *rand.Rand
	users  []string
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic := flag.String("topic", "transactions", "target topic")
	duration := flag.Duration("duration", 60*time.Second, "how long to generate")
	rate := flag.Int("rate", 10, "transactions per second")
	users := flag.Int("users", 20, "distinct user count")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(*brokers, ",")...),
		Topic:        *topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	defer writer.Close()

	g := &generator{
		writer: writer,
		rng:    rand.New(rand.NewSource(*seed)),
	}
	for i := 0; i < *users; i++ {
		g.users = append(g.users, fmt.Sprintf("user_%03d", i+1))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("%sGenerating %d tx/s to %s for %s%s\n", colorCyan, *rate, *topic, *duration, colorReset)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()
	deadline := time.After(*duration)
	count := 0

	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\n%d transactions sent\n", count)
			return
		case <-deadline:
			fmt.Printf("\n%d transactions sent\n", count)
			return
		case <-ticker.C:
			if err := g.emitOne(ctx); err != nil {
				log.Printf("send failed: %v", err)
				continue
			}
			count++
		}
	}
}

func (g *generator) emitOne(ctx context.Context) error {
	roll := g.rng.Float64()
	var (
		txns  []*models.Transaction
		label string
		color string
	)
	switch {
	case roll < 0.70:
		txns, label, color = []*models.Transaction{g.normalTxn()}, "NORMAL", colorGreen
	case roll < 0.80:
		txns, label, color = []*models.Transaction{g.highAmountTxn()}, "HIGH_AMOUNT", colorRed
	case roll < 0.90:
		txns, label, color = g.velocityBurst(), "VELOCITY", colorYellow
	case roll < 0.95:
		txns, label, color = []*models.Transaction{g.farLocationTxn()}, "LOCATION", colorPurple
	default:
		txns, label, color = []*models.Transaction{g.lateNightTxn()}, "TIME", colorCyan
	}

	msgs := make([]kafka.Message, 0, len(txns))
	for _, tx := range txns {
		data, err := json.Marshal(tx)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(tx.UserID), Value: data})
		fmt.Printf("%s[%s]%s %s %s $%.2f @ %s\n",
			color, label, colorReset, tx.TransactionID[:8], tx.UserID, tx.Amount, tx.MerchantID)
	}
	return g.writer.WriteMessages(ctx, msgs...)
}

func (g *generator) baseTxn(hour int) *models.Transaction {
	now := time.Now()
	user := g.users[g.rng.Intn(len(g.users))]
	loc := homeLocations[g.rng.Intn(len(homeLocations))]
	return &models.Transaction{
		TransactionID:    uuid.NewString(),
		UserID:           user,
		MerchantID:       merchants[g.rng.Intn(len(merchants))],
		Amount:           20 + g.rng.Float64()*80,
		Currency:         "USD",
		Timestamp:        models.NewCivilTime(now.Year(), now.Month(), now.Day(), hour, g.rng.Intn(60), g.rng.Intn(60)),
		Location:         &loc,
		PaymentMethod:    paymentMethods[g.rng.Intn(len(paymentMethods))],
		MerchantCategory: categories[g.rng.Intn(len(categories))],
		Metadata:         map[string]any{"channel": "demo"},
	}
}

func (g *generator) normalTxn() *models.Transaction {
	return g.baseTxn(9 + g.rng.Intn(11))
}

func (g *generator) highAmountTxn() *models.Transaction {
	tx := g.baseTxn(9 + g.rng.Intn(11))
	tx.Amount = 6000 + g.rng.Float64()*20000
	return tx
}

func (g *generator) velocityBurst() []*models.Transaction {
	first := g.normalTxn()
	burst := []*models.Transaction{first}
	for i := 1; i < 5; i++ {
		tx := g.normalTxn()
		tx.UserID = first.UserID
		tx.Timestamp = models.CivilTime{Time: first.Timestamp.Add(time.Duration(i) * 30 * time.Second)}
		burst = append(burst, tx)
	}
	return burst
}

func (g *generator) farLocationTxn() *models.Transaction {
	tx := g.normalTxn()
	loc := farLocations[g.rng.Intn(len(farLocations))]
	tx.Location = &loc
	return tx
}

func (g *generator) lateNightTxn() *models.Transaction {
	return g.baseTxn(g.rng.Intn(5))
}
