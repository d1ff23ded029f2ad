package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// Headers stamped on every record the harness publishes.
const (
	HeaderRunID  = "run_id"
	HeaderSource = "source"
)

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
