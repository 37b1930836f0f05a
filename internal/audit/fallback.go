package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

// FileFallback is a local append-only JSON-lines file used when the
// Postgres audit store is unreachable, so an audit failure never silently
// drops the entries it was supposed to record.
type FileFallback struct {
	mu   sync.Mutex
	path string
}

// NewFileFallback opens (creating if needed) the fallback file at path.
func NewFileFallback(path string) (*FileFallback, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening fallback file: %w", err)
	}
	f.Close()
	return &FileFallback{path: path}, nil
}

// Append writes each entry as one JSON line, fsyncing once per call.
func (f *FileFallback) Append(entries []domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("audit: opening fallback file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("audit: encoding fallback entry: %w", err)
		}
	}
	return file.Sync()
}
