package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceErrorTransient(t *testing.T) {
	assert.True(t, (&ServiceError{Kind: ServiceTimeout}).Transient())
	assert.True(t, (&ServiceError{Kind: ServiceRateLimited}).Transient())
	assert.False(t, (&ServiceError{Kind: ServiceUnavailable}).Transient())
}

func TestServiceErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &ServiceError{Kind: ServiceUnavailable, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestServiceErrorFromStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ServiceErrorKind
	}{
		{429, ServiceRateLimited},
		{500, ServiceUnavailable},
		{503, ServiceUnavailable},
		{404, ServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := serviceErrorFromStatus("test", tt.status, "body")
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
		})
	}

	assert.Nil(t, serviceErrorFromStatus("test", 200, ""))
}

func TestWrapTransportErrCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := wrapTransportErr("test", ctx, errors.New("request aborted"))
	assert.ErrorIs(t, err, context.Canceled)

	var svcErr *ServiceError
	assert.False(t, errors.As(err, &svcErr), "cancellation must not become a ServiceError")
}

func TestWrapTransportErrDeadline(t *testing.T) {
	err := wrapTransportErr("test", context.Background(),
		fmt.Errorf("request: %w", context.DeadlineExceeded))

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ServiceTimeout, svcErr.Kind)
	assert.True(t, svcErr.Transient())
}

func TestWrapTransportErrNetwork(t *testing.T) {
	err := wrapTransportErr("test", context.Background(), errors.New("connection refused"))

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, ServiceUnavailable, svcErr.Kind)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	long := truncate("this is a much longer string", 10)
	assert.Len(t, long, 10)
	assert.Contains(t, long, "...")
}
