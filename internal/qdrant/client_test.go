package qdrant

import (
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClientConfig_ApplyDefaults(t *testing.T) {
	cfg := &ClientConfig{}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2, cfg.RetryAttempts)
}

func TestClientConfig_ApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &ClientConfig{Host: "qdrant.internal", Port: 7000, RetryAttempts: 5}
	cfg.ApplyDefaults()

	assert.Equal(t, "qdrant.internal", cfg.Host)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 5, cfg.RetryAttempts)
}

func TestClientConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ClientConfig
		wantErr string
	}{
		{name: "valid", cfg: ClientConfig{Host: "localhost", Port: 6334}},
		{name: "missing host", cfg: ClientConfig{Port: 6334}, wantErr: "host is required"},
		{name: "zero port", cfg: ClientConfig{Host: "localhost"}, wantErr: "invalid port"},
		{name: "port too high", cfg: ClientConfig{Host: "localhost", Port: 70000}, wantErr: "invalid port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, isTransientError(status.Error(codes.Unavailable, "down")))
	assert.True(t, isTransientError(status.Error(codes.DeadlineExceeded, "slow")))
	assert.True(t, isTransientError(status.Error(codes.Aborted, "conflict")))
	assert.True(t, isTransientError(status.Error(codes.ResourceExhausted, "quota")))

	assert.False(t, isTransientError(nil))
	assert.False(t, isTransientError(status.Error(codes.NotFound, "missing")))
	assert.False(t, isTransientError(status.Error(codes.InvalidArgument, "bad")))
	assert.False(t, isTransientError(errors.New("plain error")))
}

func TestValueConversionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		out  interface{}
	}{
		{name: "string", in: "burst_creation", out: "burst_creation"},
		{name: "int widens", in: 42, out: int64(42)},
		{name: "int64", in: int64(7), out: int64(7)},
		{name: "float", in: 0.85, out: 0.85},
		{name: "bool", in: true, out: true},
		{name: "fallback stringifies", in: []int{1, 2}, out: "[1 2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, convertFromQdrantValue(convertToQdrantValue(tt.in)))
		})
	}
}

func TestConvertFromQdrantValue_UnknownKind(t *testing.T) {
	assert.Nil(t, convertFromQdrantValue(&qdrant.Value{}))
}
