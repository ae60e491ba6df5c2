package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInvoker struct {
	responses []string
	err       error
	requests  []map[string]json.RawMessage
	modelIDs  []string
}

func (f *fakeInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(params.Body, &body); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, body)
	f.modelIDs = append(f.modelIDs, aws.ToString(params.ModelId))

	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(resp)}, nil
}

func bedrockTestConfig(maxIterations int) Config {
	cfg := DefaultConfig()
	cfg.Planner = PlannerBedrock
	cfg.BedrockModel = "anthropic.claude-test"
	cfg.MaxIterations = maxIterations
	return cfg
}

func TestBedrockPlanner_Plan(t *testing.T) {
	invoker := &fakeInvoker{responses: []string{
		`{"content":[{"type":"text","text":"Scraping first."},{"type":"tool_use","id":"tu_1","name":"scrape_page","input":{"query":"scrape"}}],"stop_reason":"tool_use"}`,
		`{"content":[{"type":"text","text":"[{\"title\":\"Reflected XSS\",\"severity\":\"MEDIUM\"}]"}],"stop_reason":"end_turn"}`,
	}}
	tools := &fakeTools{}
	planner := NewBedrockPlannerWithClient(invoker, bedrockTestConfig(5), logger.NewTestLogger())

	out, err := planner.Plan(context.Background(), targetURL, tools)
	require.NoError(t, err)
	assert.Equal(t, `[{"title":"Reflected XSS","severity":"MEDIUM"}]`, out)
	assert.Equal(t, []string{"scrape_page:scrape"}, tools.calls)

	require.Len(t, invoker.requests, 2)
	assert.Equal(t, "anthropic.claude-test", invoker.modelIDs[0])
	assert.Contains(t, invoker.requests[0], "tools")
	assert.JSONEq(t, `"bedrock-2023-05-31"`, string(invoker.requests[0]["anthropic_version"]))

	var messages []bedrockMessage
	require.NoError(t, json.Unmarshal(invoker.requests[1]["messages"], &messages))
	require.Len(t, messages, 3)
	last := messages[2]
	assert.Equal(t, "user", last.Role)
	require.Len(t, last.Content, 1)
	assert.Equal(t, "tool_result", last.Content[0].Type)
	assert.Equal(t, "tu_1", last.Content[0].ToolUseID)
	assert.Equal(t, "ok", last.Content[0].Content)
	assert.False(t, last.Content[0].IsError)
}

func TestBedrockPlanner_Plan_IterationLimit(t *testing.T) {
	invoker := &fakeInvoker{responses: []string{
		`{"content":[{"type":"tool_use","id":"tu_1","name":"xss_test","input":{"query":"#q"}}],"stop_reason":"tool_use"}`,
	}}
	tools := &fakeTools{}
	planner := NewBedrockPlannerWithClient(invoker, bedrockTestConfig(1), logger.NewTestLogger())

	out, err := planner.Plan(context.Background(), targetURL, tools)
	require.NoError(t, err)
	assert.Empty(t, out)
	require.Len(t, invoker.requests, 2)
	assert.NotContains(t, invoker.requests[1], "tools")
}

func TestBedrockPlanner_Plan_InvokeError(t *testing.T) {
	invoker := &fakeInvoker{err: errors.New("throttled")}
	planner := NewBedrockPlannerWithClient(invoker, bedrockTestConfig(5), logger.NewTestLogger())

	_, err := planner.Plan(context.Background(), targetURL, &fakeTools{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestResponseText(t *testing.T) {
	resp := &bedrockResponse{Content: []bedrockBlock{
		{Type: "text", Text: "first"},
		{Type: "tool_use", Name: "scrape_page"},
		{Type: "text", Text: "second"},
	}}
	assert.Equal(t, "first\nsecond", responseText(resp))
}
