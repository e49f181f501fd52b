// Package journal records committed store changes to a SQL sink in the
// background. It is an audit trail only; the store is never rebuilt from it.
package journal

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"example.com/calendarapi/internal/codec"
	"example.com/calendarapi/internal/domain"
	"example.com/calendarapi/internal/idempotency"
)

// Entry is one journal row.
type Entry struct {
	EntryID string
	Key     string
	Op      domain.Op
	Date    domain.Date
	EventID int64
	Payload string // wire encoding of the event
	At      time.Time
}

// Sink persists batches. Implementations must ignore entries whose Key is
// already stored and report how many rows were actually inserted.
type Sink interface {
	InsertBatch(ctx context.Context, entries []Entry) (int64, error)
}

// NewEntry converts a change into an entry with a fresh id.
func NewEntry(c domain.Change) Entry {
	key, _ := idempotency.DeriveKey(&c)
	return Entry{
		EntryID: uuid.NewString(),
		Key:     key,
		Op:      c.Op,
		Date:    c.Event.Date,
		EventID: c.Event.ID,
		Payload: codec.Encode(c.Event),
		At:      c.At.UTC(),
	}
}

// Chunks splits entries into consecutive slices of at most size entries.
// Sinks use it to stay under their driver's bind-parameter limit.
func Chunks(entries []Entry, size int) [][]Entry {
	if size <= 0 || len(entries) <= size {
		return [][]Entry{entries}
	}
	out := make([][]Entry, 0, (len(entries)+size-1)/size)
	for len(entries) > size {
		out = append(out, entries[:size])
		entries = entries[size:]
	}
	return append(out, entries)
}

type Journal struct {
	queue        chan Entry
	sink         Sink
	batchMaxSize int
	batchMaxWait time.Duration
	log          *slog.Logger

	mu      sync.RWMutex
	stopped bool

	dropped atomic.Int64
	written atomic.Int64
	done    chan struct{}
}

// defaultBatchMaxWait applies when New is given a non-positive wait.
const defaultBatchMaxWait = 50 * time.Millisecond

func New(sink Sink, queueMaxSize, batchMaxSize int, batchMaxWait time.Duration) *Journal {
	if batchMaxSize <= 0 {
		batchMaxSize = 1
	}
	if batchMaxWait <= 0 {
		batchMaxWait = defaultBatchMaxWait
	}
	return &Journal{
		queue:        make(chan Entry, queueMaxSize),
		sink:         sink,
		batchMaxSize: batchMaxSize,
		batchMaxWait: batchMaxWait,
		log:          slog.Default().With("component", "journal"),
		done:         make(chan struct{}),
	}
}

// Start runs the batching loop until ctx is cancelled. From then on Enqueue
// rejects entries; whatever is buffered is flushed once more with a fresh
// context before Done closes.
func (j *Journal) Start(ctx context.Context) {
	go func() {
		defer close(j.done)
		batch := make([]Entry, 0, j.batchMaxSize)
		t := time.NewTimer(j.batchMaxWait)
		defer t.Stop()

		resetTimer := func() {
			if !t.Stop() {
				select {
				case <-t.C:
				default:
				}
			}
			t.Reset(j.batchMaxWait)
		}

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				resetTimer()
				return
			}
			affected, err := j.sink.InsertBatch(ctx, batch)
			if err != nil {
				j.log.Error("batch insert failed", "err", err, "dropped", len(batch))
			} else {
				j.written.Add(affected)
				j.log.Debug("batch insert ok", "inserted", affected, "size", len(batch))
			}
			batch = batch[:0]
			resetTimer()
		}

		for {
			select {
			case <-ctx.Done():
				j.stop()
				j.drain(&batch)
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				flush(shutdownCtx)
				cancel()
				return
			case e := <-j.queue:
				batch = append(batch, e)
				if len(batch) >= j.batchMaxSize {
					flush(ctx)
				}
			case <-t.C:
				flush(ctx)
			}
		}
	}()
}

// stop closes the queue to new entries. Once it returns no Enqueue can
// succeed, so the following drain sees everything that was accepted.
func (j *Journal) stop() {
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
}

func (j *Journal) drain(batch *[]Entry) {
	for {
		select {
		case e := <-j.queue:
			*batch = append(*batch, e)
		default:
			return
		}
	}
}

// Enqueue adds an entry without blocking. It reports false, and counts a
// drop, when the queue is full or the journal has stopped.
func (j *Journal) Enqueue(e Entry) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.stopped {
		j.dropped.Add(1)
		return false
	}
	select {
	case j.queue <- e:
		return true
	default:
		j.dropped.Add(1)
		return false
	}
}

// Record journals a committed change. A full queue is logged, never
// surfaced; the change is already in the store.
func (j *Journal) Record(c domain.Change) {
	if ok := j.Enqueue(NewEntry(c)); !ok {
		j.log.Warn("change not journaled, queue full or stopped", "op", c.Op, "date", c.Event.Date, "request_id", c.RequestID)
	}
}

// Done is closed after the final flush.
func (j *Journal) Done() <-chan struct{} { return j.done }

// Dropped is the number of entries rejected by a full queue.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Written is the number of rows the sink reported as inserted.
func (j *Journal) Written() int64 { return j.written.Load() }
