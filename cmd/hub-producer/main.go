package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/logging"
	"github.com/ismaiel54/trade-target-engine/internal/msg"
)

func main() {
	var (
		count     = flag.Int("count", 20, "Number of orders to generate")
		dupPct    = flag.Int("dup-pct", 30, "Percentage of snapshots sent twice (0-100)")
		legacyPct = flag.Int("legacy-pct", 50, "Percentage of snapshots in the legacy field shape (0-100)")
		seed      = flag.Int64("seed", 42, "Random seed for deterministic generation")
		brokers   = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		topic     = flag.String("topic", msg.TopicOrderSnapshots, "Topic to produce to")
		interval  = flag.Duration("interval", 0, "Pause between snapshots")
		malformed = flag.Int("malformed", 0, "Number of malformed payloads to append")
		logLevel  = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger, err := logging.NewLogger("hub-producer", *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	brokerList := msg.SplitBrokers(*brokers)
	logger.Info("starting hub producer",
		zap.Int("count", *count),
		zap.Int("dup_pct", *dupPct),
		zap.Int("legacy_pct", *legacyPct),
		zap.Int64("seed", *seed),
		zap.Strings("brokers", brokerList),
		zap.String("topic", *topic),
	)

	events, err := newGenerator(*seed, *dupPct, *legacyPct).orders(*count)
	if err != nil {
		logger.Fatal("failed to generate snapshots", zap.Error(err))
	}
	for i := 0; i < *malformed; i++ {
		events = append(events, event{OrderID: fmt.Sprintf("bad-%d", i), Payload: []byte(`{"orderId": `)})
	}

	producer, err := msg.NewProducer(msg.Config{Brokers: brokerList, ClientID: "hub-producer"}, logger)
	if err != nil {
		logger.Fatal("failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	ctx := context.Background()
	produced, failed, dups := 0, 0, 0
	for _, ev := range events {
		if err := producer.Produce(ctx, *topic, ev.OrderID, ev.Payload); err != nil {
			logger.Error("failed to produce snapshot",
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
			failed++
			continue
		}
		produced++
		if ev.Dup {
			dups++
		}
		logger.Debug("produced snapshot", zap.String("order_id", ev.OrderID), zap.Bool("dup", ev.Dup))
		if *interval > 0 {
			time.Sleep(*interval)
		}
	}

	logger.Info("hub producer completed",
		zap.Int("total", len(events)),
		zap.Int("produced", produced),
		zap.Int("failed", failed),
		zap.Int("duplicates", dups),
	)

	fmt.Printf("\n=== Hub Producer Summary ===\n")
	fmt.Printf("Orders: %d\n", *count)
	fmt.Printf("Snapshots produced: %d\n", produced)
	fmt.Printf("Failed: %d\n", failed)
	fmt.Printf("Duplicates: %d\n", dups)
	fmt.Printf("Topic: %s\n\n", *topic)

	if failed > 0 {
		os.Exit(1)
	}
}
