package mcp

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"
)

type ToolInputSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Required   []string       `json:"required,omitempty"`
}

// Tool 表示MCP工具
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolClient 工具调用入口，HTTP 接口和 MCP 服务共用
type ToolClient interface {
	// HasTool 检查是否有指定名称的工具
	HasTool(name string) bool

	// GetAvailableTools 获取所有可用工具
	GetAvailableTools() []openai.Tool

	// CallTool 调用指定的工具
	CallTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error)
}

// CallRecord 一次工具调用的记录
type CallRecord struct {
	Tool     string
	Args     map[string]interface{}
	Result   interface{}
	Err      error
	Duration time.Duration
}

// Recorder 工具调用记录器，记录失败不影响调用结果
type Recorder interface {
	Record(ctx context.Context, record CallRecord) error
}

// 确保LocalClient实现了ToolClient接口
var _ ToolClient = (*LocalClient)(nil)
