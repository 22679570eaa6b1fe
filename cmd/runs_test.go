package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/panel-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	created, _ := time.Parse(time.RFC3339, "2024-06-01T12:00:00Z")
	runs := []store.Run{
		{
			ID:        "run-1",
			Spec:      store.RunSpec{Left: "fundamentals", Right: "prices", Mode: "via-link"},
			Status:    store.RunStatusComplete,
			CreatedAt: created,
		},
		{
			ID:        "run-2",
			Spec:      store.RunSpec{Left: "fundamentals", Right: "returns", Mode: "direct-key"},
			Status:    store.RunStatusFailed,
			CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "via-link")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "run-2")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "2024-06-01T12:00:00Z")
}
