package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tetris-agent-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

type HandlerFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// localPrefix 通过 function calling 暴露给模型时附加的前缀
const localPrefix = "local_"

type LocalClient struct {
	tools    []Tool
	mu       sync.RWMutex
	logger   *utils.Logger
	handler  map[string]HandlerFunc
	recorder Recorder
}

func NewLocalClient(logger *utils.Logger) *LocalClient {
	return &LocalClient{
		tools:   make([]Tool, 0),
		handler: make(map[string]HandlerFunc),
		logger:  logger,
	}
}

// SetRecorder 设置调用记录器，nil 表示不记录
func (c *LocalClient) SetRecorder(recorder Recorder) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recorder = recorder
}

// HasTool 检查本地客户端是否有指定名称的工具，local_ 前缀可选
func (c *LocalClient) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.handler[strings.TrimPrefix(name, localPrefix)]
	return ok
}

// Tools 按注册顺序返回工具定义
func (c *LocalClient) Tools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Tool, len(c.tools))
	copy(result, c.tools)
	return result
}

// GetAvailableTools 获取本地客户端的所有可用工具
func (c *LocalClient) GetAvailableTools() []openai.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]openai.Tool, 0, len(c.tools))
	for _, tool := range c.tools {
		required := tool.InputSchema.Required
		if required == nil {
			required = make([]string, 0)
		}
		openaiTool := openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        localPrefix + tool.Name,
				Description: tool.Description,
				Parameters: map[string]interface{}{
					"type":       tool.InputSchema.Type,
					"properties": tool.InputSchema.Properties,
					"required":   required,
				},
			},
		}
		result = append(result, openaiTool)
	}
	return result
}

// CallTool 调用本地客户端的指定工具
func (c *LocalClient) CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	name = strings.TrimPrefix(name, localPrefix)

	c.mu.RLock()
	handler, ok := c.handler[name]
	recorder := c.recorder
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool %s not found", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	start := time.Now()
	result, err := handler(ctx, args)
	elapsed := time.Since(start)

	if recorder != nil {
		record := CallRecord{Tool: name, Args: args, Result: result, Err: err, Duration: elapsed}
		// 调用方取消后仍然要落库
		if recErr := recorder.Record(context.WithoutCancel(ctx), record); recErr != nil {
			c.logger.Warn("记录工具调用失败", map[string]interface{}{
				"tool":  name,
				"error": recErr.Error(),
			})
		}
	}
	return result, err
}

func (c *LocalClient) AddTool(name string, description string, input ToolInputSchema, handler HandlerFunc) error {
	if c.HasTool(name) {
		return fmt.Errorf("tool %s already exists", name)
	}

	tool := Tool{
		Name:        name,
		Description: description,
		InputSchema: input,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append(c.tools, tool)
	c.handler[name] = handler
	return nil
}
