package tunnel

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "error", StatusError.String())
	assert.Equal(t, "unknown", Status(99).String())
}

func TestLogBufferWrapAround(t *testing.T) {
	buf := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		buf.Append(LogEntry{Text: fmt.Sprintf("line-%d", i)})
	}

	entries := buf.List()
	require.Len(t, entries, 3)
	assert.Equal(t, "line-2", entries[0].Text)
	assert.Equal(t, "line-4", entries[2].Text)
}

func TestLogBufferConcurrentAppend(t *testing.T) {
	buf := NewLogBuffer(100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buf.Append(LogEntry{Text: "x"})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, buf.Len())
}

func TestRuntimeDefaultsDisconnected(t *testing.T) {
	rt := NewRuntime("id-1")
	assert.Equal(t, "id-1", rt.ID())
	assert.Equal(t, StatusDisconnected, rt.Primary())
	assert.Equal(t, StatusDisconnected, rt.Proxy())
	assert.Empty(t, rt.LastError())
	assert.False(t, rt.IntentionallyStopped())
}

func TestRuntimeFullyConnected(t *testing.T) {
	rt := NewRuntime("id-1")
	assert.False(t, rt.FullyConnected(false))

	rt.SetPrimary(StatusConnected)
	assert.True(t, rt.FullyConnected(false))
	assert.False(t, rt.FullyConnected(true), "proxy configured but not connected")

	rt.SetProxy(StatusConnected)
	assert.True(t, rt.FullyConnected(true))

	rt.SetPrimary(StatusError)
	assert.False(t, rt.FullyConnected(true))
}

func TestRuntimeSnapshot(t *testing.T) {
	rt := NewRuntime("id-2")
	rt.SetPrimary(StatusConnecting)
	rt.SetLastError("boom")
	rt.SetIntentionallyStopped(true)

	snap := rt.Snapshot()
	assert.Equal(t, "id-2", snap.ID)
	assert.Equal(t, StatusConnecting, snap.Primary)
	assert.Equal(t, StatusDisconnected, snap.Proxy)
	assert.Equal(t, "boom", snap.LastError)
	assert.True(t, snap.IntentionallyStopped)
}

func TestRuntimeLogAppend(t *testing.T) {
	rt := NewRuntime("id-3")
	rt.AppendLog("port-forward", "Forwarding from 127.0.0.1:8080 -> 80", false)
	rt.AppendLog("proxy", "bind failed", true)

	logs := rt.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "port-forward", logs[0].Role)
	assert.False(t, logs[0].IsError)
	assert.True(t, logs[1].IsError)
	assert.False(t, logs[0].Timestamp.IsZero())
}
