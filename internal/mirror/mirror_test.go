package mirror

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEvaler struct {
	marked map[string]bool
}

func newFakeEvaler() *fakeEvaler {
	return &fakeEvaler{marked: map[string]bool{}}
}

func (f *fakeEvaler) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.marked[key] {
		return false, nil
	}
	f.marked[key] = true
	return true, nil
}

func (f *fakeEvaler) Exists(_ context.Context, key string) (bool, error) {
	return f.marked[key], nil
}

func TestMirror_MarkThenAlreadyDelivered(t *testing.T) {
	m := NewWithEvaler(newFakeEvaler(), time.Minute)
	require.False(t, m.AlreadyDelivered(context.Background(), "batch-1"))

	m.MarkDelivered(context.Background(), "batch-1")
	require.True(t, m.AlreadyDelivered(context.Background(), "batch-1"))
	require.False(t, m.AlreadyDelivered(context.Background(), "batch-2"))
}

func TestMirror_NilMirrorIsSafe(t *testing.T) {
	var m *Mirror
	require.False(t, m.AlreadyDelivered(context.Background(), "batch-1"))
	require.NotPanics(t, func() { m.MarkDelivered(context.Background(), "batch-1") })
}

func TestMirror_EmptyBatchIDNeverDelivered(t *testing.T) {
	m := NewWithEvaler(newFakeEvaler(), time.Minute)
	require.False(t, m.AlreadyDelivered(context.Background(), ""))
}
