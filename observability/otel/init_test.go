package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "tipsd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer x ,broken,=skip, tenant=tips ")
	require.Equal(t, map[string]string{"authorization": "Bearer x", "tenant": "tips"}, headers)
}

func TestSampler(t *testing.T) {
	require.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	require.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestShutdownAllReverseOrderFirstError(t *testing.T) {
	var order []string
	failure := errors.New("flush failed")
	stop := shutdownAll([]ShutdownFunc{
		func(context.Context) error { order = append(order, "traces"); return failure },
		func(context.Context) error { order = append(order, "metrics"); return nil },
	})
	require.ErrorIs(t, stop(context.Background()), failure)
	require.Equal(t, []string{"metrics", "traces"}, order)
}
