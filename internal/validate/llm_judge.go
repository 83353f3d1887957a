package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/adriacb/enact/internal/model"
)

// messagesClient captures the subset of the Anthropic SDK used here, so
// tests can substitute a fake rather than a live API client.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// LLMJudge is a Custom validator that asks a language model whether a
// request's justification plausibly supports the tool call being made.
// It augments, not replaces, Justification: Justification enforces
// mechanical requirements (length, required keywords), LLMJudge catches
// justifications that satisfy those requirements but don't actually make
// sense for the tool being invoked.
type LLMJudge struct {
	client    messagesClient
	model     string
	maxTokens int
}

// NewLLMJudge builds an LLMJudge backed by an Anthropic Messages client.
func NewLLMJudge(client *sdk.Client, modelName string, maxTokens int) *LLMJudge {
	return &LLMJudge{client: &client.Messages, model: modelName, maxTokens: maxTokens}
}

const judgePrompt = `You review whether an AI agent's stated justification plausibly supports the tool call it is about to make. Respond with a single compact JSON object: {"valid": bool, "reason": string}. "reason" must be non-empty and should be short.

tool: %s
function: %s
arguments: %s
justification: %s`

// Validate implements Validator. On any error contacting the judge model
// or parsing its response, Validate returns that error so the engine can
// convert it into its "internal: <kind>" denial — it does not silently
// pass the request.
func (j *LLMJudge) Validate(req model.GovernanceRequest) (Result, error) {
	justification, _ := req.Context.Justification()

	args, err := json.Marshal(req.Arguments)
	if err != nil {
		return Result{}, fmt.Errorf("llm judge: marshaling arguments: %w", err)
	}

	prompt := fmt.Sprintf(judgePrompt, req.ToolName, req.FunctionName, string(args), justification)

	resp, err := j.client.New(context.Background(), sdk.MessageNewParams{
		Model:     sdk.Model(j.model),
		MaxTokens: int64(j.maxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("llm judge: model call failed: %w", err)
	}

	verdict, err := parseJudgeVerdict(resp)
	if err != nil {
		return Result{}, fmt.Errorf("llm judge: %w", err)
	}

	if !verdict.Valid {
		return Invalid(verdict.Reason), nil
	}
	return Valid, nil
}

type judgeVerdict struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason"`
}

func parseJudgeVerdict(resp *sdk.Message) (judgeVerdict, error) {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(text.String())), &verdict); err != nil {
		return judgeVerdict{}, fmt.Errorf("parsing judge response %q: %w", text.String(), err)
	}
	if verdict.Reason == "" {
		return judgeVerdict{}, fmt.Errorf("judge response missing reason")
	}
	return verdict, nil
}
