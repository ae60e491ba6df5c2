package agent

import (
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/browser"
	"github.com/hairizuanbinnoorazman/web-pentest/toolset"
)

// Planner kinds accepted by Config.Planner.
const (
	PlannerDirect  = "direct"
	PlannerOpenAI  = "openai"
	PlannerBedrock = "bedrock"
)

// Config holds the orchestrator configuration.
type Config struct {
	Planner              string
	MaxIterations        int
	TimeLimit            time.Duration
	MaxConcurrentWorkers int
	QueueSize            int
	CaptureScreenshot    bool

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	BedrockRegion    string
	BedrockModel     string
	BedrockMaxTokens int

	Browser browser.Config
	Toolset toolset.Config
}

// DefaultConfig returns the stock orchestrator settings with the direct planner.
func DefaultConfig() Config {
	return Config{
		Planner:              PlannerDirect,
		MaxIterations:        25,
		TimeLimit:            15 * time.Minute,
		MaxConcurrentWorkers: 2,
		QueueSize:            32,
		CaptureScreenshot:    true,
		OpenAIModel:          "gpt-4.1-mini",
		BedrockMaxTokens:     4096,
		Browser:              browser.DefaultConfig(),
		Toolset:              toolset.DefaultConfig(),
	}
}
