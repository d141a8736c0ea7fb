package ollama

import (
	"context"
	"fmt"
	"strings"

	"tetris-agent-go/src/core/providers/llm"
	"tetris-agent-go/src/core/types"
	"tetris-agent-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// DefaultBaseURL 本地 Ollama 服务地址
const DefaultBaseURL = "http://localhost:11434"

// Provider Ollama LLM提供者，通过 /v1 兼容接口调用，支持 llava、qwen2.5vl 等视觉模型
type Provider struct {
	*llm.BaseProvider
	client  *openai.Client
	isQwen3 bool
}

// 注册提供者
func init() {
	llm.Register("ollama", NewProvider)
}

// NewProvider 创建Ollama提供者
func NewProvider(config *llm.Config) (llm.Provider, error) {
	provider := &Provider{
		BaseProvider: llm.NewBaseProvider(config),
		// 检查是否是qwen3模型
		isQwen3: strings.HasPrefix(strings.ToLower(config.ModelName), "qwen3"),
	}
	return provider, nil
}

// Initialize 初始化提供者
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.ModelName == "" {
		return fmt.Errorf("缺少Ollama模型名称配置")
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	// 确保URL以/v1结尾
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL = baseURL + "/v1"
	}

	// Ollama不需要真正的API key，但openai客户端需要一个值
	clientConfig := openai.DefaultConfig("ollama")
	clientConfig.BaseURL = baseURL

	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Complete types.LLMProvider接口实现
func (p *Provider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	// 如果是qwen3模型，在用户最后一条消息中添加/no_think指令
	if p.isQwen3 {
		messages = addNoThinkDirective(messages)
	}

	resp, err := p.client.CreateChatCompletion(ctx, llm.ChatRequest(p.Config(), messages))
	if err != nil {
		return "", fmt.Errorf("Ollama服务响应异常: %w", err)
	}
	content, err := llm.FirstChoice(resp)
	if err != nil {
		return "", err
	}
	return utils.StripThinkTags(content), nil
}

// addNoThinkDirective 在最后一条用户消息前添加/no_think指令，不修改调用方的切片
func addNoThinkDirective(messages []types.Message) []types.Message {
	messagesCopy := make([]types.Message, len(messages))
	copy(messagesCopy, messages)

	for i := len(messagesCopy) - 1; i >= 0; i-- {
		if messagesCopy[i].Role != types.RoleUser {
			continue
		}
		msg := &messagesCopy[i]
		if !msg.IsMultimodal() {
			msg.Content = "/no_think " + msg.Content
			break
		}
		parts := make([]types.ContentPart, len(msg.Parts))
		copy(parts, msg.Parts)
		for j := range parts {
			if parts[j].Type == types.PartText {
				parts[j].Text = "/no_think " + parts[j].Text
				break
			}
		}
		msg.Parts = parts
		break
	}

	return messagesCopy
}
