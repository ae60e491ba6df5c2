package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
	"github.com/sashabaranov/go-openai"
)

// OpenAIPlanner drives the tools through OpenAI function calling.
type OpenAIPlanner struct {
	client        *openai.Client
	model         string
	maxIterations int
	logger        logger.Logger
}

// NewOpenAIPlanner creates an OpenAI planner. OpenAIBaseURL overrides the API
// endpoint for compatible gateways.
func NewOpenAIPlanner(cfg Config, log logger.Logger) *OpenAIPlanner {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	model := cfg.OpenAIModel
	if model == "" {
		model = "gpt-4.1-mini"
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 25
	}
	return &OpenAIPlanner{
		client:        openai.NewClientWithConfig(clientCfg),
		model:         model,
		maxIterations: maxIterations,
		logger:        log,
	}
}

func openAITools() []openai.Tool {
	defs := toolset.Definitions()
	tools := make([]openai.Tool, len(defs))
	for i, d := range defs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		}
	}
	return tools
}

// Plan runs the tool-calling loop until the model answers without a tool call
// or the iteration cap is reached.
func (p *OpenAIPlanner) Plan(ctx context.Context, targetURL string, tools Tools) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: initialPrompt(targetURL)},
	}
	defs := openAITools()

	for i := 0; i < p.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		msg, err := p.complete(ctx, messages, defs)
		if err != nil {
			return "", err
		}
		messages = append(messages, msg)

		if len(msg.ToolCalls) == 0 {
			p.logger.Info(ctx, "planner finished", logger.Fields{
				"iterations": i + 1,
				"model":      p.model,
			})
			return msg.Content, nil
		}

		for _, call := range msg.ToolCalls {
			input := toolset.QueryFromArguments(json.RawMessage(call.Function.Arguments))
			res := tools.Call(ctx, call.Function.Name, input)
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    res.String(),
				ToolCallID: call.ID,
			})
		}
	}

	p.logger.Warn(ctx, "planner reached iteration limit", logger.Fields{
		"max_iterations": p.maxIterations,
	})
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: finalAnswerPrompt,
	})
	msg, err := p.complete(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (p *OpenAIPlanner) complete(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    tools,
	})
	if err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message, nil
}
