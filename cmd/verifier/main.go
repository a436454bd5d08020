package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/ismaiel54/trade-target-engine/internal/engine"
	"github.com/ismaiel54/trade-target-engine/internal/hubfeed"
	"github.com/ismaiel54/trade-target-engine/internal/logging"
	"github.com/ismaiel54/trade-target-engine/internal/msg"
)

func main() {
	var (
		duration = flag.Duration("duration", 30*time.Second, "How long to consume snapshots")
		brokers  = flag.String("brokers", "127.0.0.1:9092", "Kafka broker addresses")
		topic    = flag.String("topic", msg.TopicOrderSnapshots, "Snapshot topic")
		group    = flag.String("group", "", "Consumer group (default: unique per run)")
		logLevel = flag.String("log-level", "info", "Log level")
	)
	flag.Parse()

	logger, err := logging.NewLogger("verifier", *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *group == "" {
		*group = fmt.Sprintf("verifier-%d", time.Now().UnixNano())
	}
	brokerList := msg.SplitBrokers(*brokers)
	logger.Info("starting verifier",
		zap.Duration("duration", *duration),
		zap.Strings("brokers", brokerList),
		zap.String("topic", *topic),
		zap.String("group", *group),
	)

	consumer, err := msg.NewConsumer(msg.Config{Brokers: brokerList, ClientID: "verifier"}, *group, []string{*topic}, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	// replay into a persistence-less engine; only snapshots reach it
	eng := engine.New(nil, logger)
	engCtx, stopEngine := context.WithCancel(context.Background())
	defer stopEngine()
	go func() { _ = eng.Run(engCtx) }()

	stats := &feedStats{}
	handler := hubfeed.NewHandler(eng, stats, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	records := 0
	err = consumer.Run(ctx, func(ctx context.Context, rec msg.Record) error {
		records++
		return handler.HandleRecord(ctx, rec)
	})
	if err != nil {
		logger.Error("consumer error", zap.Error(err))
	}

	views, err := eng.Views(engCtx)
	if err != nil {
		logger.Fatal("failed to read engine state", zap.Error(err))
	}
	report := verify(views)

	fmt.Println("\n=== Verification Results ===")
	fmt.Printf("Records consumed: %d\n", records)
	fmt.Printf("Malformed payloads: %d\n", stats.malformed)
	fmt.Printf("Orders: %d\n", report.Orders)
	fmt.Printf("Targets: %d\n", report.Targets)
	fmt.Printf("Violations: %d\n", len(report.Violations))

	if len(report.Violations) > 0 {
		fmt.Println("\nViolations found:")
		for _, v := range report.Violations {
			fmt.Printf("  %s\n", v)
		}
		fmt.Println("\n❌ VERIFICATION FAILED")
		os.Exit(1)
	}

	fmt.Println("\n✅ VERIFICATION PASSED: allocation ceiling and key uniqueness hold")
}

type feedStats struct {
	malformed int
}

func (s *feedStats) Snapshot(result string) {
	if result == "malformed" {
		s.malformed++
	}
}
