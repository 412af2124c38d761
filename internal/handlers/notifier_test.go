package handlers

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotification_String(t *testing.T) {
	assert.Equal(t, "[ERROR] Publish failed: boom", Notification{Level: LevelError, Title: "Publish failed", Message: "boom"}.String())
	assert.Equal(t, "[INFO] Done", Notification{Title: "Done"}.String())
	assert.Equal(t, "[WARN] x", Notification{Level: LevelWarn, Title: "x"}.String())
}

func TestWriterNotifier_NoAck(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf, nil)

	require.NoError(t, n.Notify(context.Background(), Notification{Title: "hello"}))
	assert.Equal(t, "[INFO] hello\n", buf.String())
}

func TestWriterNotifier_WaitsForAck(t *testing.T) {
	var buf bytes.Buffer
	n := NewWriterNotifier(&buf, strings.NewReader("\n"))

	require.NoError(t, n.Notify(context.Background(), Notification{Level: LevelError, Title: "oops"}))
	assert.Equal(t, "[ERROR] oops\nPress Enter to continue...", buf.String())

	// EOF on the ack reader does not block further notifications
	require.NoError(t, n.Notify(context.Background(), Notification{Title: "again"}))
}

func TestWriterNotifier_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	n := NewWriterNotifier(io.Discard, pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := n.Notify(ctx, Notification{Title: "never acked"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
