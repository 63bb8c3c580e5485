package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/indexfleet/internal/cluster"
)

// captureFatal replaces logFatal for the duration of the test and reports
// whether it was called.
func captureFatal(t *testing.T) *bool {
	t.Helper()
	called := false
	old := logFatal
	logFatal = func(format string, v ...interface{}) { called = true }
	t.Cleanup(func() { logFatal = old })
	return &called
}

func TestGetenv(t *testing.T) {
	t.Setenv("COORD_TEST_VAR", "value")
	assert.Equal(t, "value", getenv("COORD_TEST_VAR", "default"))
	assert.Equal(t, "default", getenv("COORD_TEST_UNSET", "default"))
}

func TestGetDuration(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		want      time.Duration
		wantFatal bool
	}{
		{name: "unset", value: "", want: 3 * time.Second},
		{name: "valid", value: "250ms", want: 250 * time.Millisecond},
		{name: "malformed", value: "soon", want: 3 * time.Second, wantFatal: true},
		{name: "negative", value: "-1s", want: 3 * time.Second, wantFatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fatal := captureFatal(t)
			t.Setenv("COORD_TEST_DURATION", tt.value)

			assert.Equal(t, tt.want, getDuration("COORD_TEST_DURATION", 3*time.Second))
			assert.Equal(t, tt.wantFatal, *fatal)
		})
	}
}

func TestGetInt(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		want      int
		wantFatal bool
	}{
		{name: "unset", value: "", want: 10},
		{name: "valid", value: "4", want: 4},
		{name: "zero", value: "0", want: 10, wantFatal: true},
		{name: "malformed", value: "four", want: 10, wantFatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fatal := captureFatal(t)
			t.Setenv("COORD_TEST_INT", tt.value)

			assert.Equal(t, tt.want, getInt("COORD_TEST_INT", 10))
			assert.Equal(t, tt.wantFatal, *fatal)
		})
	}
}

func TestLoadWorkers(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "workers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("workers:\n  - host: 10.0.0.11\n    port: 6005\n  - host: 10.0.0.12\n    port: 6005\n"), 0o600))
		t.Setenv("WORKERS_FILE", path)
		t.Setenv("WORKERS", "ignored:1")

		workers, err := loadWorkers()
		require.NoError(t, err)
		assert.Equal(t, []cluster.WorkerInfo{{Host: "10.0.0.11", Port: 6005}, {Host: "10.0.0.12", Port: 6005}}, workers)
	})

	t.Run("from list", func(t *testing.T) {
		t.Setenv("WORKERS_FILE", "")
		t.Setenv("WORKERS", "a:1, b:2")

		workers, err := loadWorkers()
		require.NoError(t, err)
		assert.Equal(t, []cluster.WorkerInfo{{Host: "a", Port: 1}, {Host: "b", Port: 2}}, workers)
	})

	t.Run("neither", func(t *testing.T) {
		t.Setenv("WORKERS_FILE", "")
		t.Setenv("WORKERS", "")

		_, err := loadWorkers()
		var cfgErr *cluster.ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, isTimeout(context.DeadlineExceeded))
	assert.True(t, isTimeout(&cluster.TransportError{Op: "get_job", Err: timeoutErr{}}))
	assert.False(t, isTimeout(&cluster.TransportError{Op: "get_job", Err: errors.New("connection refused")}))
	assert.False(t, isTimeout(fmt.Errorf("wrapped: %w", context.Canceled)))
}
