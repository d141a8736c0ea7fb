package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"tetris-agent-go/src/core/tools"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ServerName MCP 服务名称
const ServerName = "tetris-agent"

// NewServer 把本地注册的工具通过 MCP 协议暴露出去
func NewServer(client *LocalClient, version string) (*server.MCPServer, error) {
	s := server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false))

	for _, tool := range client.Tools() {
		schema, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("序列化工具 %s 的参数定义失败: %w", tool.Name, err)
		}
		s.AddTool(mcp.NewToolWithRawSchema(tool.Name, tool.Description, schema), client.serverHandler(tool.Name))
	}
	return s, nil
}

// ServeStdio 在标准输入输出上运行 MCP 服务，直到输入关闭
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (c *LocalClient) serverHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := any(request.Params.Arguments).(map[string]any)

		result, err := c.CallTool(ctx, name, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("序列化结果失败: %v", err)), nil
		}
		res := mcp.NewToolResultText(string(data))
		if env, ok := result.(tools.Envelope); ok && !env.IsSuccess() {
			res.IsError = true
		}
		return res, nil
	}
}
