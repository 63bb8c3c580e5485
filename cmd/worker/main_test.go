package main

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/indexfleet/internal/objectstore"
)

func TestGetenv(t *testing.T) {
	t.Setenv("WORKER_TEST_VAR", "value")
	assert.Equal(t, "value", getenv("WORKER_TEST_VAR", "default"))
	assert.Equal(t, "default", getenv("WORKER_TEST_UNSET", "default"))
}

func TestLogProgress(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	tests := []struct {
		name    string
		p       objectstore.Progress
		logged  bool
		contain string
	}{
		{name: "intermediate chunk", p: objectstore.Progress{Key: "k", Downloaded: 1 << 20, Total: 256 << 20}},
		{name: "step boundary", p: objectstore.Progress{Key: "k", Downloaded: 64 << 20, Total: 256 << 20}, logged: true, contain: "25.0%"},
		{name: "complete", p: objectstore.Progress{Key: "k", Downloaded: 10, Total: 10}, logged: true, contain: "100.0%"},
		{name: "unknown size", p: objectstore.Progress{Key: "k", Downloaded: 128 << 20, Total: -1}, logged: true, contain: "134217728 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			logProgress(tt.p)
			if !tt.logged {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.contain)
		})
	}
}
