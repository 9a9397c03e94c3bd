package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/tandemcode/tandem/pkg/types"
)

// Ark is the Volcengine ARK adapter. ARK addresses models by endpoint
// ID, so the catalog is built from configuration rather than a fixed
// list.
type Ark struct {
	chatModel model.ToolCallingChatModel
	config    *ArkConfig
}

// ArkConfig configures the ARK adapter.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // endpoint ID
	MaxTokens int
}

// NewArk creates the ARK adapter. APIKey and Model fall back to
// ARK_API_KEY and ARK_MODEL_ID.
func NewArk(ctx context.Context, config *ArkConfig) (*Ark, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ARK_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set")
	}

	modelID := config.Model
	if modelID == "" {
		modelID = os.Getenv("ARK_MODEL_ID")
	}
	if modelID == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set")
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create ark model: %w", err)
	}
	return &Ark{chatModel: chatModel, config: config}, nil
}

func (p *Ark) ID() string   { return "ark" }
func (p *Ark) Name() string { return "ARK" }

func (p *Ark) Models() []types.Model {
	return []types.Model{
		{
			ID:            p.config.Model,
			Name:          "ARK " + p.config.Model,
			ProviderID:    "ark",
			ContextLength: 128000,
			SupportsTools: true,
		},
	}
}

func (p *Ark) Stream(ctx context.Context, req *Request) (<-chan Delta, error) {
	return einoStream(ctx, p.chatModel, req)
}
