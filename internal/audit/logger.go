// Package audit provides a hash-chained, append-only audit trail for
// every PHI-sensitive and data-mutating operation the loader performs.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// Store persists a batch of chained audit entries. Entries arrive already
// hash-chained and redacted; the store's only job is durable append.
type Store interface {
	AppendBatch(ctx context.Context, entries []domain.AuditEntry) error
	LastHash(ctx context.Context) (string, error)
}

const (
	defaultBatchThreshold = 100
	defaultFlushInterval  = 5 * time.Second
)

// Logger buffers audit entries in memory, chaining and redacting each one
// on arrival, and drains the buffer to Store either when it crosses
// defaultBatchThreshold entries or every defaultFlushInterval, whichever
// comes first.
type Logger struct {
	store    Store
	fallback *FileFallback
	log      *logrus.Logger

	mu           sync.Mutex
	buf          []domain.AuditEntry
	previousHash string

	flushInterval time.Duration
	batchSize     int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLogger starts the logger's background flush loop. Call Close to
// drain the remaining buffer and stop the loop.
func NewLogger(store Store, fallback *FileFallback, log *logrus.Logger) *Logger {
	if log == nil {
		log = logrus.New()
	}
	l := &Logger{
		store:         store,
		fallback:      fallback,
		log:           log,
		flushInterval: defaultFlushInterval,
		batchSize:     defaultBatchThreshold,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	if seeded, err := store.LastHash(context.Background()); err == nil {
		l.previousHash = seeded
	} else {
		log.WithError(err).Warn("audit: could not seed previous hash, starting a new chain")
	}

	go l.flushLoop()
	return l
}

// LogEvent chains, redacts, and buffers entry, flushing immediately if the
// buffer has crossed the batch threshold.
func (l *Logger) LogEvent(ctx context.Context, entry domain.AuditEntry) error {
	entry.Details = Redact(entry.Details)

	l.mu.Lock()
	hash, err := chainHash(entry, l.previousHash)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	entry.PreviousHash = l.previousHash
	entry.EntryHash = hash
	l.previousHash = hash
	l.buf = append(l.buf, entry)
	shouldFlush := len(l.buf) >= l.batchSize
	l.mu.Unlock()

	if shouldFlush {
		l.flush(ctx)
	}
	return nil
}

func (l *Logger) flushLoop() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.flush(context.Background())
		case <-l.stopCh:
			l.flush(context.Background())
			return
		}
	}
}

func (l *Logger) flush(ctx context.Context) {
	l.mu.Lock()
	if len(l.buf) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.buf
	l.buf = nil
	l.mu.Unlock()

	if err := l.store.AppendBatch(ctx, batch); err != nil {
		l.log.WithError(err).WithField("entries", len(batch)).
			Error("audit: postgres append failed, writing local fallback")
		if l.fallback != nil {
			if ferr := l.fallback.Append(batch); ferr != nil {
				l.log.WithError(ferr).Error("audit: local fallback write also failed, entries lost")
			}
		}
	}
}

// Close stops the background flush loop and drains the remaining buffer.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	return nil
}
