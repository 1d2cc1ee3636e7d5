package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,bad, =skip,x=1")
	require.Equal(t, map[string]string{"api-key": "abc", "x": "1"}, headers)
}

func TestTracerWithoutProvider(t *testing.T) {
	_, span := Tracer("test").Start(context.Background(), "op")
	span.End()
}

func TestMeterWithoutProvider(t *testing.T) {
	counter, err := Meter("test").Int64Counter("test.ops")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}
