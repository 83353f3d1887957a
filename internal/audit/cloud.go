package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	"github.com/adriacb/enact/internal/model"
)

// cloudWatchClient is the subset of the CloudWatch Logs API this sink needs.
// Expressed as an interface purely so tests can substitute a fake.
type cloudWatchClient interface {
	CreateLogStream(ctx context.Context, in *cloudwatchlogs.CreateLogStreamInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
	PutLogEvents(ctx context.Context, in *cloudwatchlogs.PutLogEventsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
}

// CloudWatchSink batches audit records and writes them to a CloudWatch Logs
// stream, auto-creating the stream on first write and tracking the
// sequence token CloudWatch requires on every PutLogEvents call after the
// first.
type CloudWatchSink struct {
	client   cloudWatchClient
	group    string
	stream   string
	batchMax int
	flushEvery time.Duration

	mu       sync.Mutex
	pending  []types.InputLogEvent
	token    *string
	created  bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCloudWatchSink builds a sink that writes to logGroup/logStream,
// flushing whenever batchMax records have accumulated or flushEvery has
// elapsed, whichever comes first.
func NewCloudWatchSink(client cloudWatchClient, logGroup, logStream string, batchMax int, flushEvery time.Duration) *CloudWatchSink {
	if batchMax <= 0 {
		batchMax = 25
	}
	if flushEvery <= 0 {
		flushEvery = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &CloudWatchSink{
		client:     client,
		group:      logGroup,
		stream:     logStream,
		batchMax:   batchMax,
		flushEvery: flushEvery,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Name implements Sink.
func (s *CloudWatchSink) Name() string { return "cloudwatch" }

// Log implements Sink. It appends record to the pending batch and flushes
// immediately once the batch reaches batchMax.
func (s *CloudWatchSink) Log(record model.AuditRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit cloudwatch sink: marshaling record: %w", err)
	}

	s.mu.Lock()
	s.pending = append(s.pending, types.InputLogEvent{
		Message:   aws.String(string(body)),
		Timestamp: aws.Int64(record.Timestamp.UnixMilli()),
	})
	full := len(s.pending) >= s.batchMax
	s.mu.Unlock()

	if full {
		return s.flush()
	}
	return nil
}

func (s *CloudWatchSink) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushEvery)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			_ = s.flush()
			return
		case <-ticker.C:
			_ = s.flush()
		}
	}
}

func (s *CloudWatchSink) flush() error {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return nil
	}
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()

	if err := s.ensureStream(); err != nil {
		return err
	}

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	out, err := s.client.PutLogEvents(context.Background(), &cloudwatchlogs.PutLogEventsInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
		LogEvents:     batch,
		SequenceToken: token,
	})
	if err != nil {
		return fmt.Errorf("audit cloudwatch sink: put log events: %w", err)
	}

	s.mu.Lock()
	s.token = out.NextSequenceToken
	s.mu.Unlock()
	return nil
}

func (s *CloudWatchSink) ensureStream() error {
	s.mu.Lock()
	created := s.created
	s.mu.Unlock()
	if created {
		return nil
	}

	_, err := s.client.CreateLogStream(context.Background(), &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(s.group),
		LogStreamName: aws.String(s.stream),
	})
	var alreadyExists *types.ResourceAlreadyExistsException
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("audit cloudwatch sink: create log stream: %w", err)
	}

	s.mu.Lock()
	s.created = true
	s.mu.Unlock()
	return nil
}

// Close stops the background flush loop and flushes any pending records.
func (s *CloudWatchSink) Close() error {
	s.cancel()
	<-s.done
	return nil
}
