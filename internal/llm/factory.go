// Package llm builds the chat models the agent stages talk to.
package llm

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dyike/cortextrader/config"
	"github.com/dyike/cortextrader/pkg/errors"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// Tier selects between the fast model used by analysts and debaters and the
// slower reasoning model used by judges.
type Tier int

const (
	Quick Tier = iota
	Deep
)

// Models holds one chat model per tier.
type Models struct {
	Quick model.BaseChatModel
	Deep  model.BaseChatModel
}

// For returns the model for tier.
func (m *Models) For(t Tier) model.BaseChatModel {
	if t == Deep && m.Deep != nil {
		return m.Deep
	}
	return m.Quick
}

func New(ctx context.Context, cfg *config.Config) (*Models, error) {
	apiKey := cfg.APIKey()
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.Wrapf(errors.KindConfig, "llm.new", "no api key for provider %s", cfg.LLMProvider)
	}

	quick, err := newModel(ctx, cfg, cfg.QuickThinkLLM, apiKey)
	if err != nil {
		return nil, err
	}
	deep, err := newModel(ctx, cfg, cfg.DeepThinkLLM, apiKey)
	if err != nil {
		return nil, err
	}
	return &Models{Quick: quick, Deep: deep}, nil
}

func newModel(ctx context.Context, cfg *config.Config, name, apiKey string) (model.BaseChatModel, error) {
	maxTokens := cfg.MaxTokens
	provider := strings.ToLower(cfg.LLMProvider)

	// deepseek-reasoner goes through the native client; everything else speaks
	// the OpenAI protocol.
	if provider == "deepseek" && strings.Contains(name, "reasoner") {
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    apiKey,
			Model:     name,
			MaxTokens: maxTokens,
		})
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "llm.deepseek", err)
		}
		return cm, nil
	}

	baseURL := cfg.BackendURL
	if baseURL == "" && provider == "deepseek" {
		baseURL = deepseekBaseURL
	}
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Model:     name,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "llm.openai", err)
	}
	return cm, nil
}
