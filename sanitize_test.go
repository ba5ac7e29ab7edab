package apidash

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeEvent_TruncatesAndUppercases(t *testing.T) {
	e := Event{
		Method:     "get",
		Path:       "/" + strings.Repeat("x", 3000),
		ConsumerID: strings.Repeat("c", 300),
	}
	got, ok := sanitizeEvent(e, DefaultMaxEventBytes)
	require.True(t, ok)
	require.Equal(t, "GET", got.Method)
	require.Len(t, got.Path, maxPathLength)
	require.Len(t, got.ConsumerID, maxConsumerIDLength)
	require.NotEmpty(t, got.Timestamp)
}

func TestSanitizeEvent_PreservesExistingTimestamp(t *testing.T) {
	e := Event{Method: "GET", Path: "/", Timestamp: "2020-01-01T00:00:00Z"}
	got, ok := sanitizeEvent(e, DefaultMaxEventBytes)
	require.True(t, ok)
	require.Equal(t, "2020-01-01T00:00:00Z", got.Timestamp)
}

func TestSanitizeEvent_DropsMetadataUnderPressure(t *testing.T) {
	e := Event{
		Method:   "GET",
		Path:     "/",
		Metadata: map[string]any{"blob": strings.Repeat("m", 200)},
	}
	got, ok := sanitizeEvent(e, 150)
	require.True(t, ok)
	require.Nil(t, got.Metadata)
}

func TestSanitizeEvent_DropsWhenStillTooLarge(t *testing.T) {
	e := Event{Method: "GET", Path: strings.Repeat("p", maxPathLength)}
	_, ok := sanitizeEvent(e, 10)
	require.False(t, ok)
}
