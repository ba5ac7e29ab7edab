package apidash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(&RetryableSendError{StatusCode: 500}))
	require.False(t, IsRetryable(&NonRetryableSendError{StatusCode: 401}))
	require.False(t, IsRetryable(&ConfigError{Message: "bad"}))
}

func TestErrorMessages(t *testing.T) {
	require.Contains(t, (&ConfigError{Message: "api_key required"}).Error(), "api_key required")
	require.Contains(t, (&RetryableSendError{StatusCode: 503, Reason: "unavailable"}).Error(), "503")
	require.Contains(t, (&RetryableSendError{Reason: "dial tcp: timeout"}).Error(), "dial tcp")
	require.Contains(t, (&NonRetryableSendError{StatusCode: 401, Reason: "unauthorized"}).Error(), "401")
}
