package audit

import (
	"context"
	"sync"

	"github.com/nerrad567/jsonwp-core/internal/jsonwp"
)

// recorderChanSize bounds the queue between request handlers and the
// database writer. Entries beyond it are dropped.
const recorderChanSize = 256

// Logger is the logging surface the recorder needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder writes dispatcher events to a Repository from a single
// goroutine, so request handlers never wait on SQLite.
type Recorder struct {
	repo   Repository
	logger Logger
	ch     chan *Entry

	startOnce sync.Once
	done      chan struct{}
}

// NewRecorder creates a Recorder. Call Run to start writing.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
		ch:     make(chan *Entry, recorderChanSize),
		done:   make(chan struct{}),
	}
}

// CommandDispatched queues ev for writing. It never blocks.
func (r *Recorder) CommandDispatched(_ context.Context, ev jsonwp.CommandEvent) {
	entry := EntryFromEvent(ev)
	select {
	case r.ch <- entry:
	default:
		r.logger.Warn("command log queue full, dropping entry",
			"command", ev.Command,
			"session_id", ev.SessionID,
		)
	}
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left and returns.
func (r *Recorder) Run(ctx context.Context) {
	r.startOnce.Do(func() {
		defer close(r.done)
		for {
			select {
			case entry := <-r.ch:
				r.write(entry)
			case <-ctx.Done():
				for {
					select {
					case entry := <-r.ch:
						r.write(entry)
					default:
						return
					}
				}
			}
		}
	})
}

// Done is closed once Run has drained the queue.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) write(entry *Entry) {
	// Use a fresh context so shutdown does not abort the final writes.
	if err := r.repo.Create(context.Background(), entry); err != nil {
		r.logger.Error("command log write failed",
			"command", entry.Command,
			"error", err,
		)
	}
}
