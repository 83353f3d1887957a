package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/adriacb/enact/internal/model"
)

// HTTPSink POSTs each record as a JSON body to a configured URL. A
// non-2xx response is a sink failure.
type HTTPSink struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewHTTPSink builds an HTTPSink with its own bounded client.
func NewHTTPSink(url string, headers map[string]string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{url: url, headers: headers, client: &http.Client{Timeout: timeout}}
}

// Name implements Sink.
func (s *HTTPSink) Name() string { return "http" }

// Log implements Sink.
func (s *HTTPSink) Log(record model.AuditRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit http sink: marshaling record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("audit http sink: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("audit http sink: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("audit http sink: non-2xx status %d", resp.StatusCode)
	}
	return nil
}
