// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

package tracing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceFileLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	require.False(t, IsTraceFileOpen())
	require.NoError(t, OpenTraceFile(path))
	require.True(t, IsTraceFileOpen())
	assert.Error(t, OpenTraceFile(path), "a second open must fail while the first is active")

	tracer := FileTracer{Tid: "upper_phy_dl"}
	start := tracer.Now()
	require.False(t, start.IsZero())
	tracer.Event("process_dmrs", start)
	tracer.Event("CB", start)
	tracer.Instant("slot_indication", ScopeThread)

	CloseTraceFile()
	require.False(t, IsTraceFileOpen())

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(content, &events))
	require.Len(t, events, 3)
	assert.Equal(t, "process_dmrs", events[0]["name"])
	assert.Equal(t, "X", events[0]["ph"])
	assert.Equal(t, "upper_phy_dl", events[0]["tid"])
	assert.Equal(t, "i", events[2]["ph"])
	assert.Equal(t, "t", events[2]["s"])
}

func TestClosedTracerDropsEvents(t *testing.T) {
	tracer := FileTracer{}
	assert.False(t, tracer.Enabled())
	assert.True(t, tracer.Now().IsZero())
	tracer.Event("ignored", tracer.Now())
	CloseTraceFile()
}

func TestTraceFileNamePattern(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, OpenTraceFile(filepath.Join(dir, "trace_%Y.json")))
	CloseTraceFile()
	matches, err := filepath.Glob(filepath.Join(dir, "trace_2*.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
