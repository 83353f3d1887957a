package audit

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/adriacb/enact/internal/model"
)

// Facility is an RFC 5424 syslog facility code.
type Facility int

const (
	FacilityUser  Facility = 1
	FacilityLocal0 Facility = 16
	FacilityLocal1 Facility = 17
	FacilityLocal2 Facility = 18
	FacilityLocal3 Facility = 19
	FacilityLocal4 Facility = 20
	FacilityLocal5 Facility = 21
	FacilityLocal6 Facility = 22
	FacilityLocal7 Facility = 23
)

const severityInfo = 6 // RFC 5424 "Informational"

// SyslogSink frames each audit record as an RFC 5424 message and writes it
// over a datagram (UDP) or stream (TCP) connection, configurable facility.
type SyslogSink struct {
	mu       sync.Mutex
	conn     net.Conn
	network  string
	facility Facility
	hostname string
	appName  string
}

// NewSyslogSink dials network ("udp" or "tcp") addr and builds a sink that
// frames every record at the given facility.
func NewSyslogSink(network, addr string, facility Facility) (*SyslogSink, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, fmt.Errorf("audit syslog sink: dialing %s %s: %w", network, addr, err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "-"
	}
	return &SyslogSink{conn: conn, network: network, facility: facility, hostname: hostname, appName: "enact"}, nil
}

// Name implements Sink.
func (s *SyslogSink) Name() string { return "syslog" }

// priority combines facility and severity per RFC 5424 §6.2.1:
// PRIVAL = Facility*8 + Severity.
func (s *SyslogSink) priority() int {
	return int(s.facility)*8 + severityInfo
}

// Log implements Sink. It frames record as a single RFC 5424 message with
// the correlation ID as MSGID, no structured data ("-"), and the
// JSON-encoded audit record as the message body, and writes it
// length-prefixed when the connection is a stream, or as one whole
// datagram otherwise.
func (s *SyslogSink) Log(record model.AuditRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit syslog sink: marshaling record: %w", err)
	}

	ts := record.Timestamp.UTC().Format(time.RFC3339Nano)
	msg := fmt.Sprintf("<%d>1 %s %s %s - %s - %s",
		s.priority(), ts, s.hostname, s.appName, record.CorrelationID, body)

	frame := []byte(msg)
	if s.network == "tcp" {
		// RFC 6587 octet-counting framing for stream transport.
		frame = append([]byte(fmt.Sprintf("%d ", len(msg))), frame...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("audit syslog sink: writing: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *SyslogSink) Close() error {
	return s.conn.Close()
}
