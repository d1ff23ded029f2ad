package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 ,"))
	assert.Empty(t, SplitBrokers(""))
}

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{{Key: HeaderRunID, Value: []byte("run-1")}}
	assert.Equal(t, "run-1", HeaderValue(headers, HeaderRunID))
	assert.Equal(t, "", HeaderValue(headers, HeaderSource))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderRunID, Value: []byte("run-1")}})
	require.NotEmpty(t, HeaderValue(headers, "traceparent"))
	assert.Equal(t, "run-1", HeaderValue(headers, HeaderRunID))

	extracted := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
}

func TestTopicStateReady(t *testing.T) {
	assert.True(t, TopicState{Exists: true, Partitions: 3}.Ready(3))
	assert.False(t, TopicState{Exists: true, Partitions: 3, Leaderless: 1}.Ready(3))
	assert.False(t, TopicState{Exists: true, Partitions: 1}.Ready(3))
	assert.False(t, TopicState{}.Ready(3))
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	err := ReadyCheck(nil)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}
