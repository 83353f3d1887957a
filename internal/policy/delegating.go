package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/adriacb/enact/internal/model"
)

// Delegating evaluates a request by posting it to a remote decision
// service and interpreting the response. On any network error or non-2xx
// response it fails to DefaultAllow with reason "decision service
// unavailable" — fail-closed whenever DefaultAllow is false.
type Delegating struct {
	Endpoint     string
	Path         string
	Headers      map[string]string
	Timeout      time.Duration
	DefaultAllow bool

	client *http.Client
}

// NewDelegating constructs a Delegating policy with its own bounded HTTP
// client; the client's timeout tracks the configured Timeout.
func NewDelegating(endpoint, path string, headers map[string]string, timeout time.Duration, defaultAllow bool) *Delegating {
	return &Delegating{
		Endpoint:     endpoint,
		Path:         path,
		Headers:      headers,
		Timeout:      timeout,
		DefaultAllow: defaultAllow,
		client:       &http.Client{Timeout: timeout},
	}
}

type delegatingInput struct {
	AgentID       string      `json:"agent_id"`
	ToolName      string      `json:"tool_name"`
	FunctionName  string      `json:"function_name"`
	Arguments     model.Args  `json:"arguments"`
	Context       model.Context `json:"context"`
	CorrelationID string      `json:"correlation_id"`
	Timestamp     time.Time   `json:"timestamp"`
}

type delegatingRequest struct {
	Input delegatingInput `json:"input"`
}

type delegatingResponse struct {
	Result *bool   `json:"result"`
	Allow  *bool   `json:"allow"`
	Reason *string `json:"reason"`
}

func (p *Delegating) unavailable() model.GovernanceDecision {
	return model.GovernanceDecision{Allow: p.DefaultAllow, Reason: "decision service unavailable"}
}

// Evaluate implements model.Policy.
func (p *Delegating) Evaluate(req model.GovernanceRequest) (model.GovernanceDecision, error) {
	body := delegatingRequest{Input: delegatingInput{
		AgentID:       req.AgentID,
		ToolName:      req.ToolName,
		FunctionName:  req.FunctionName,
		Arguments:     req.Arguments,
		Context:       req.Context,
		CorrelationID: req.CorrelationID,
		Timestamp:     req.Timestamp,
	}}

	payload, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("delegating policy: marshaling request")
		return p.unavailable(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint+p.Path, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("delegating policy: building request")
		return p.unavailable(), nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", p.Endpoint).Msg("delegating policy: decision service unreachable")
		return p.unavailable(), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("delegating policy: non-2xx from decision service")
		return p.unavailable(), nil
	}

	var decoded delegatingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		log.Warn().Err(err).Msg("delegating policy: decoding decision service response")
		return p.unavailable(), nil
	}

	switch {
	case decoded.Allow != nil:
		reason := "remote decision"
		if decoded.Reason != nil {
			reason = *decoded.Reason
		}
		return model.GovernanceDecision{Allow: *decoded.Allow, Reason: reason}, nil
	case decoded.Result != nil:
		return model.GovernanceDecision{Allow: *decoded.Result, Reason: "remote decision"}, nil
	default:
		log.Warn().Msg("delegating policy: response had neither result nor allow field")
		return p.unavailable(), nil
	}
}
