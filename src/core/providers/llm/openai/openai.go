package openai

import (
	"context"
	"fmt"

	"tetris-agent-go/src/core/providers/llm"
	"tetris-agent-go/src/core/types"
	"tetris-agent-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Provider OpenAI LLM提供者，也适用于 glm-4v 等兼容 OpenAI 接口的多模态模型
type Provider struct {
	*llm.BaseProvider
	client *openai.Client
}

// 注册提供者
func init() {
	llm.Register("openai", NewProvider)
}

// NewProvider 创建OpenAI提供者
func NewProvider(config *llm.Config) (llm.Provider, error) {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	return &Provider{BaseProvider: llm.NewBaseProvider(config)}, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("missing OpenAI API key")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Complete types.LLMProvider接口实现，一次请求返回完整回复
func (p *Provider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, llm.ChatRequest(p.Config(), messages))
	if err != nil {
		return "", fmt.Errorf("OpenAI服务响应异常: %w", err)
	}
	content, err := llm.FirstChoice(resp)
	if err != nil {
		return "", err
	}
	return utils.StripThinkTags(content), nil
}
