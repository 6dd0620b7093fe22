package invoker

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/forgeworks/squadron/pkg/models"
)

// AnthropicConfig contains configuration for the Anthropic-backed invoker.
type AnthropicConfig struct {
	// Model is the Claude model to use.
	Model anthropic.Model
	// APIKey is the Anthropic API key. If empty, uses ANTHROPIC_API_KEY.
	APIKey string
	// MaxTokens caps the response size per invocation. Defaults to 8192.
	MaxTokens int64
	// UseAWSBedrock routes calls through AWS Bedrock instead of the API.
	UseAWSBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g. "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
}

// Anthropic is an Invoker backed by the Anthropic messages API.
type Anthropic struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic creates an Anthropic-backed invoker.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	var opts []option.RequestOption

	if cfg.UseAWSBedrock {
		ctx := context.Background()

		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}

		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := cfg.Model
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}
	if cfg.UseAWSBedrock {
		model = translateModelForBedrock(model)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &Anthropic{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// translateModelForBedrock converts standard Anthropic model names to
// Bedrock cross-region inference profile format (us.anthropic.{model}-v1:0).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	bedrockModels := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaude3_7Sonnet20250219:  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
		anthropic.ModelClaude3_5Haiku20241022:   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	}
	if bedrockModel, ok := bedrockModels[model]; ok {
		return anthropic.Model(bedrockModel)
	}
	return model
}

// Invoke sends one message for the agent and wraps the response in an
// artifact. Token usage is attached as opaque metadata for downstream
// cost tracking; the core never interprets it.
func (a *Anthropic) Invoke(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
	resp, err := a.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt(agent)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt(item))),
		},
	})
	if err != nil {
		return models.Artifact{}, fmt.Errorf("invoke agent %s: %w", agent.Name, err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(variant.Text)
		}
	}

	return models.Artifact{
		Type:    "report",
		ID:      item.Step + "/" + agent.Name + ".md",
		Content: content.String(),
		Step:    item.Step,
		Squad:   agent.Squad,
		Agent:   agent.Name,
		Metadata: map[string]string{
			"model":         string(a.model),
			"input_tokens":  strconv.FormatInt(resp.Usage.InputTokens, 10),
			"output_tokens": strconv.FormatInt(resp.Usage.OutputTokens, 10),
		},
		CreatedAt: time.Now(),
	}, nil
}

func systemPrompt(agent models.AgentDescriptor) string {
	caps := strings.Join(agent.Capabilities, ", ")
	if caps == "" {
		caps = "general software development"
	}
	return fmt.Sprintf("You are the %s agent of the %s squad. Capabilities: %s.", agent.Role, agent.Squad, caps)
}

func userPrompt(item models.WorkItem) string {
	var b strings.Builder
	b.WriteString(item.Description)
	if len(item.Context) > 0 {
		b.WriteString("\n\nContext:\n")
		keys := make([]string, 0, len(item.Context))
		for k := range item.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, item.Context[k])
		}
	}
	return b.String()
}
