package handlers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// Level is the severity of a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Notification is a message the user must see.
type Notification struct {
	Level   Level
	Title   string
	Message string
}

func (n Notification) String() string {
	if n.Message == "" {
		return fmt.Sprintf("[%s] %s", n.Level, n.Title)
	}
	return fmt.Sprintf("[%s] %s: %s", n.Level, n.Title, n.Message)
}

// Notifier shows a notification and returns once the user has seen it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// WriterNotifier prints notifications. With an ack reader it waits for a
// line on it before returning.
type WriterNotifier struct {
	mu  sync.Mutex
	w   io.Writer
	ack *bufio.Reader
}

// NewWriterNotifier creates a notifier writing to w. ack may be nil.
func NewWriterNotifier(w io.Writer, ack io.Reader) *WriterNotifier {
	n := &WriterNotifier{w: w}
	if ack != nil {
		n.ack = bufio.NewReader(ack)
	}
	return n
}

// Notify writes the notification and blocks for acknowledgement.
func (wn *WriterNotifier) Notify(ctx context.Context, n Notification) error {
	wn.mu.Lock()
	defer wn.mu.Unlock()

	if _, err := fmt.Fprintln(wn.w, n.String()); err != nil {
		return err
	}
	if wn.ack == nil {
		return nil
	}
	if _, err := fmt.Fprint(wn.w, "Press Enter to continue..."); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := wn.ack.ReadString('\n')
		done <- err
	}()
	select {
	case err := <-done:
		if err == io.EOF {
			return nil
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
