package llm

import (
	"fmt"
	"sort"
	"sync"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/types"

	"github.com/sashabaranov/go-openai"
)

// Config LLM配置结构，与配置文件中 LLM 下的条目一致
type Config = configs.LLMConfig

// Provider LLM提供者接口
type Provider interface {
	types.LLMProvider
}

// BaseProvider LLM基础实现
type BaseProvider struct {
	config *Config
}

// Config 获取配置
func (p *BaseProvider) Config() *Config {
	return p.config
}

// NewBaseProvider 创建LLM基础提供者
func NewBaseProvider(config *Config) *BaseProvider {
	return &BaseProvider{
		config: config,
	}
}

// Initialize 初始化提供者
func (p *BaseProvider) Initialize() error {
	return nil
}

// Cleanup 清理资源
func (p *BaseProvider) Cleanup() error {
	return nil
}

// Factory LLM工厂函数类型
type Factory func(config *Config) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register 注册LLM提供者工厂
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Create 创建LLM提供者实例
func Create(name string, config *Config) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("未知的LLM提供者: %s", name)
	}

	provider, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("创建LLM提供者失败: %w", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化LLM提供者失败: %w", err)
	}

	return provider, nil
}

// CreateFromConfig 按配置文件中的模型名创建提供者，type 决定使用哪个后端
func CreateFromConfig(cfg *configs.Config, modelRef string) (Provider, error) {
	entry, ok := cfg.LLM[modelRef]
	if !ok {
		return nil, fmt.Errorf("配置中不存在模型: %s", modelRef)
	}
	backend := entry.Type
	if backend == "" {
		backend = modelRef
	}
	return Create(backend, &entry)
}

// RegisteredProviders 已注册的后端名称，按字母排序
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToChatMessages 把内部消息转换为 OpenAI 兼容格式，多片段消息使用 MultiContent
func ToChatMessages(messages []types.Message) []openai.ChatCompletionMessage {
	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessage := openai.ChatCompletionMessage{Role: msg.Role}
		if !msg.IsMultimodal() {
			chatMessage.Content = msg.Content
			chatMessages[i] = chatMessage
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch part.Type {
			case types.PartImageURL:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    part.ImageURL,
						Detail: openai.ImageURLDetailAuto,
					},
				})
			default:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: part.Text,
				})
			}
		}
		chatMessage.MultiContent = parts
		chatMessages[i] = chatMessage
	}
	return chatMessages
}

// ChatRequest 根据配置构建一次非流式请求
func ChatRequest(config *Config, messages []types.Message) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:       config.ModelName,
		Messages:    ToChatMessages(messages),
		MaxTokens:   config.MaxTokens,
		Temperature: float32(config.Temperature),
		TopP:        float32(config.TopP),
	}
}

// FirstChoice 取第一个候选回复
func FirstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("模型没有返回任何候选结果")
	}
	return resp.Choices[0].Message.Content, nil
}
