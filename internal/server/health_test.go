package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer(t *testing.T) {
	srv, hs := NewHealthServer()
	defer srv.Stop()

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthServiceName})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	SetServing(hs, true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	SetServing(hs, false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}
