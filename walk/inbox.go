package walk

import (
	"context"
	"io"
	"sync"
)

// Inbox is the send side of the coordinator's single many-to-one queue.
// Every walker holds one; only the coordinator receives.
type Inbox interface {
	Deliver(ctx context.Context, report CompletionReport) error
}

// channelInbox is the in-process transport. Its capacity equals the number of
// expected reports, so a send never blocks and a report is never dropped,
// even once ctx is done.
type channelInbox chan CompletionReport

func (in channelInbox) Deliver(_ context.Context, report CompletionReport) error {
	in <- report
	return nil
}

// lockedWriter keeps each output line intact when many walkers share one
// writer. It imposes no ordering between walkers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
