package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/adriacb/enact/internal/model"
)

// FileSink appends one JSON object per line to a file, ISO-8601 with
// timezone per the timestamp field's json.Marshal encoding of time.Time.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens path for appending, creating it if necessary.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit file sink: opening %s: %w", path, err)
	}
	return &FileSink{file: f}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Log implements Sink.
func (s *FileSink) Log(record model.AuditRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit file sink: marshaling record: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("audit file sink: writing: %w", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (s *FileSink) Close() error {
	return s.file.Close()
}
