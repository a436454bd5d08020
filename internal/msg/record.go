package msg

import "context"

// Record represents a consumed Kafka record
type Record struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
	Timestamp int64
}

// Handler processes one consumed record
type Handler func(context.Context, Record) error
