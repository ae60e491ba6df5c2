package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chatServer answers chat completions with respond and keeps every request.
type chatServer struct {
	mu       sync.Mutex
	requests []openai.ChatCompletionRequest
	respond  func(req openai.ChatCompletionRequest, n int) openai.ChatCompletionMessage
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()

	msg := s.respond(req, n)
	finish := openai.FinishReasonStop
	if len(msg.ToolCalls) > 0 {
		finish = openai.FinishReasonToolCalls
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:     "chatcmpl-test",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []openai.ChatCompletionChoice{
			{Index: 0, Message: msg, FinishReason: finish},
		},
	})
}

func toolCall(id, name, query string) openai.ToolCall {
	args, _ := json.Marshal(map[string]string{"query": query})
	return openai.ToolCall{
		ID:   id,
		Type: openai.ToolTypeFunction,
		Function: openai.FunctionCall{
			Name:      name,
			Arguments: string(args),
		},
	}
}

func newTestOpenAIPlanner(t *testing.T, srv *chatServer, maxIterations int) *OpenAIPlanner {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	cfg := DefaultConfig()
	cfg.Planner = PlannerOpenAI
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = ts.URL + "/v1"
	cfg.MaxIterations = maxIterations
	return NewOpenAIPlanner(cfg, logger.NewTestLogger())
}

func TestOpenAIPlanner_Plan(t *testing.T) {
	srv := &chatServer{respond: func(req openai.ChatCompletionRequest, n int) openai.ChatCompletionMessage {
		if n == 1 {
			return openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{toolCall("call_1", "scrape_page", "scrape")},
			}
		}
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: `[{"severity":"LOW","title":"Verbose errors"}]`,
		}
	}}
	planner := newTestOpenAIPlanner(t, srv, 5)
	tools := &fakeTools{}

	out, err := planner.Plan(context.Background(), targetURL, tools)
	require.NoError(t, err)
	assert.Equal(t, `[{"severity":"LOW","title":"Verbose errors"}]`, out)
	assert.Equal(t, []string{"scrape_page:scrape"}, tools.calls)

	require.Len(t, srv.requests, 2)
	first := srv.requests[0]
	assert.Equal(t, "gpt-4.1-mini", first.Model)
	assert.Len(t, first.Tools, 5)
	assert.Equal(t, openai.ChatMessageRoleSystem, first.Messages[0].Role)
	assert.Contains(t, first.Messages[1].Content, targetURL)

	second := srv.requests[1]
	last := second.Messages[len(second.Messages)-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "call_1", last.ToolCallID)
	assert.Equal(t, "ok", last.Content)
}

func TestOpenAIPlanner_Plan_IterationLimit(t *testing.T) {
	srv := &chatServer{respond: func(req openai.ChatCompletionRequest, n int) openai.ChatCompletionMessage {
		if len(req.Tools) == 0 {
			return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "[]"}
		}
		return openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{toolCall("call_x", "xss_test", "#q")},
		}
	}}
	planner := newTestOpenAIPlanner(t, srv, 2)
	tools := &fakeTools{}

	out, err := planner.Plan(context.Background(), targetURL, tools)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
	assert.Len(t, tools.calls, 2)
	require.Len(t, srv.requests, 3)

	final := srv.requests[2]
	assert.Equal(t, finalAnswerPrompt, final.Messages[len(final.Messages)-1].Content)
}

func TestOpenAIPlanner_Plan_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	cfg := DefaultConfig()
	cfg.OpenAIAPIKey = "sk-bad"
	cfg.OpenAIBaseURL = ts.URL + "/v1"

	_, err := NewOpenAIPlanner(cfg, logger.NewTestLogger()).Plan(context.Background(), targetURL, &fakeTools{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}
