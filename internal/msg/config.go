package msg

import "strings"

// Topic names
const (
	TopicOrderSnapshots = "orders.snapshots"
)

// Config holds Kafka configuration
type Config struct {
	Brokers  []string
	ClientID string
}

// SplitBrokers parses a comma-separated broker list
func SplitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
