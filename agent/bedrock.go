package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
)

// ModelInvoker is the subset of the Bedrock runtime client the planner uses.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockPlanner drives the tools through Anthropic models on AWS Bedrock.
type BedrockPlanner struct {
	client        ModelInvoker
	modelID       string
	maxTokens     int
	maxIterations int
	logger        logger.Logger
}

// NewBedrockPlanner loads the default AWS configuration for cfg.BedrockRegion.
func NewBedrockPlanner(ctx context.Context, cfg Config, log logger.Logger) (*BedrockPlanner, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.BedrockRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewBedrockPlannerWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg, log), nil
}

// NewBedrockPlannerWithClient creates a planner around an existing client.
func NewBedrockPlannerWithClient(client ModelInvoker, cfg Config, log logger.Logger) *BedrockPlanner {
	maxTokens := cfg.BedrockMaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 25
	}
	return &BedrockPlanner{
		client:        client,
		modelID:       cfg.BedrockModel,
		maxTokens:     maxTokens,
		maxIterations: maxIterations,
		logger:        log,
	}
}

type bedrockBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type bedrockMessage struct {
	Role    string         `json:"role"`
	Content []bedrockBlock `json:"content"`
}

type bedrockTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type bedrockResponse struct {
	Content    []bedrockBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

func bedrockTools() []bedrockTool {
	defs := toolset.Definitions()
	tools := make([]bedrockTool, len(defs))
	for i, d := range defs {
		tools[i] = bedrockTool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema}
	}
	return tools
}

// Plan runs the tool_use loop until the model stops asking for tools or the
// iteration cap is reached.
func (p *BedrockPlanner) Plan(ctx context.Context, targetURL string, tools Tools) (string, error) {
	messages := []bedrockMessage{{
		Role:    "user",
		Content: []bedrockBlock{{Type: "text", Text: initialPrompt(targetURL)}},
	}}
	defs := bedrockTools()

	for i := 0; i < p.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		resp, err := p.invoke(ctx, messages, defs)
		if err != nil {
			return "", err
		}
		messages = append(messages, bedrockMessage{Role: "assistant", Content: resp.Content})

		var results []bedrockBlock
		for _, block := range resp.Content {
			if block.Type != "tool_use" {
				continue
			}
			res := tools.Call(ctx, block.Name, toolset.QueryFromArguments(block.Input))
			results = append(results, bedrockBlock{
				Type:      "tool_result",
				ToolUseID: block.ID,
				Content:   res.String(),
				IsError:   !res.OK,
			})
		}
		if len(results) == 0 {
			p.logger.Info(ctx, "planner finished", logger.Fields{
				"iterations": i + 1,
				"model":      p.modelID,
			})
			return responseText(resp), nil
		}
		messages = append(messages, bedrockMessage{Role: "user", Content: results})
	}

	p.logger.Warn(ctx, "planner reached iteration limit", logger.Fields{
		"max_iterations": p.maxIterations,
	})
	messages = append(messages, bedrockMessage{
		Role:    "user",
		Content: []bedrockBlock{{Type: "text", Text: finalAnswerPrompt}},
	})
	resp, err := p.invoke(ctx, messages, nil)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

func (p *BedrockPlanner) invoke(ctx context.Context, messages []bedrockMessage, tools []bedrockTool) (*bedrockResponse, error) {
	requestBody := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        p.maxTokens,
		"system":            systemPrompt,
		"messages":          messages,
	}
	if len(tools) > 0 {
		requestBody["tools"] = tools
	}

	payloadBytes, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(p.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        payloadBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &resp, nil
}

func responseText(resp *bedrockResponse) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
