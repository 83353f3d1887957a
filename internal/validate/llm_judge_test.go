package validate

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/adriacb/enact/internal/model"
)

type fakeMessagesClient struct {
	resp *sdk.Message
	err  error
}

func (f *fakeMessagesClient) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return f.resp, f.err
}

func textMessage(text string) *sdk.Message {
	return &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: text}}}
}

func TestLLMJudgeValidVerdictPasses(t *testing.T) {
	j := &LLMJudge{client: &fakeMessagesClient{resp: textMessage(`{"valid": true, "reason": "justification matches the tool"}`)}, model: "claude-3-5-sonnet", maxTokens: 256}

	res, err := j.Validate(model.GovernanceRequest{
		ToolName:     "db",
		FunctionName: "select",
		Context:      model.Context{"justification": "reading for a scheduled report"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid {
		t.Fatalf("expected a valid verdict to pass, got %+v", res)
	}
}

func TestLLMJudgeInvalidVerdictDenies(t *testing.T) {
	j := &LLMJudge{client: &fakeMessagesClient{resp: textMessage(`{"valid": false, "reason": "justification doesn't match a delete call"}`)}, model: "claude-3-5-sonnet", maxTokens: 256}

	res, err := j.Validate(model.GovernanceRequest{ToolName: "db", FunctionName: "delete_table"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Reason != "justification doesn't match a delete call" {
		t.Fatalf("expected the judge's denial reason to surface, got %+v", res)
	}
}

func TestLLMJudgeModelCallErrorPropagates(t *testing.T) {
	callErr := errors.New("rate limited")
	j := &LLMJudge{client: &fakeMessagesClient{err: callErr}, model: "claude-3-5-sonnet", maxTokens: 256}

	_, err := j.Validate(model.GovernanceRequest{})
	if err == nil || !errors.Is(err, callErr) {
		t.Fatalf("expected the model call error to propagate, got %v", err)
	}
}

func TestLLMJudgeMalformedResponseErrors(t *testing.T) {
	j := &LLMJudge{client: &fakeMessagesClient{resp: textMessage("not json")}, model: "claude-3-5-sonnet", maxTokens: 256}

	if _, err := j.Validate(model.GovernanceRequest{}); err == nil {
		t.Fatal("expected an error parsing a non-JSON judge response")
	}
}

func TestLLMJudgeMissingReasonErrors(t *testing.T) {
	j := &LLMJudge{client: &fakeMessagesClient{resp: textMessage(`{"valid": true}`)}, model: "claude-3-5-sonnet", maxTokens: 256}

	if _, err := j.Validate(model.GovernanceRequest{}); err == nil {
		t.Fatal("expected an error when the judge omits a reason")
	}
}
