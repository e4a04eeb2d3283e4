package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"messagehub/internal/config"
)

const moderationPrompt = "You are a chat moderation filter. " +
	"Decide whether the user's message is acceptable in a workplace chat. " +
	"Reply with exactly ALLOW if it is acceptable, otherwise reply BLOCK: followed by a short reason. " +
	"Output nothing else."

// LLM asks a chat model to classify text.
type LLM struct {
	model model.BaseChatModel
}

func NewLLM(m model.BaseChatModel) *LLM {
	return &LLM{model: m}
}

func (l *LLM) Check(ctx context.Context, text string) (Verdict, error) {
	if l == nil || l.model == nil {
		return allow, nil
	}
	resp, err := l.model.Generate(ctx, []*schema.Message{
		{Role: schema.System, Content: moderationPrompt},
		{Role: schema.User, Content: text},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("moderation model: %w", err)
	}
	return parseVerdict(resp.Content), nil
}

func parseVerdict(raw string) Verdict {
	out := strings.TrimSpace(raw)
	upper := strings.ToUpper(out)
	if strings.HasPrefix(upper, "BLOCK") {
		reason := strings.TrimSpace(strings.TrimLeft(out[len("BLOCK"):], ":- "))
		if reason == "" {
			reason = "message rejected by moderation"
		}
		return Verdict{Allowed: false, Reason: reason}
	}
	return allow
}

// NewChatModel builds the provider's chat model. modelName and apiKey fall back to the provider config.
func NewChatModel(ctx context.Context, provider, modelName, apiKey string, providers map[string]config.ProviderConfig) (model.ToolCallingChatModel, error) {
	provCfg, ok := providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if modelName == "" {
		modelName = provCfg.Model
	}
	if apiKey == "" {
		apiKey = provCfg.APIKey
	}
	if apiKey == "" {
		return nil, errors.New("api key not configured")
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   modelName,
			APIKey:  apiKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  modelName,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    apiKey,
			Model:     modelName,
			BaseURL:   baseURLPtr,
			MaxTokens: 64,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}
	return chatModel, nil
}

// FromConfig assembles the configured checker chain.
func FromConfig(ctx context.Context, cfg *config.Config) (Checker, error) {
	if !cfg.Moderation.Enabled {
		return Chain{}, nil
	}
	chain := Chain{NewWordList(cfg.Moderation.BannedWords)}
	if cfg.Moderation.LLMProvider != "" {
		m, err := NewChatModel(ctx, cfg.Moderation.LLMProvider, cfg.Moderation.LLMModel, "", cfg.Providers)
		if err != nil {
			return nil, err
		}
		chain = append(chain, NewLLM(m))
	}
	return chain, nil
}
