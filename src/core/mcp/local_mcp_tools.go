package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"tetris-agent-go/src/core/tools"
)

// AddToolVision 注册俄罗斯方块视觉分析工具
func (c *LocalClient) AddToolVision(vision *tools.VisionTool) error {
	InputSchema := ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"image_input": map[string]any{
				"type":        "string",
				"description": "游戏截图的URL或本地文件路径",
			},
			"image_base64": map[string]any{
				"type":        "string",
				"description": "base64编码的截图数据，可带 data:image/...;base64, 前缀",
			},
			"detail_level": map[string]any{
				"type":        "string",
				"enum":        []string{"basic", "detailed", "expert"},
				"description": "分析详细程度，不填使用服务端配置",
			},
		},
	}

	return c.AddTool(tools.VisionToolName,
		tools.VisionDescription,
		InputSchema,
		func(ctx context.Context, args map[string]any) (interface{}, error) {
			input, err := imageArg(args)
			if err != nil {
				return tools.Reject(tools.VisionToolName, tools.ReasonInvalidArgument, err.Error()), nil
			}
			detailLevel, err := stringArg(args, "detail_level")
			if err != nil {
				return tools.Reject(tools.VisionToolName, tools.ReasonInvalidArgument, err.Error()), nil
			}
			return vision.Analyze(ctx, tools.VisionArgs{Image: input, DetailLevel: detailLevel}), nil
		})
}

// AddToolStrategy 注册俄罗斯方块策略分析工具
func (c *LocalClient) AddToolStrategy(strategy *tools.StrategyTool) error {
	InputSchema := ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"game_state": map[string]any{
				"type":        "object",
				"description": "游戏状态（包含分数、等级、方块布局等信息），通常来自视觉分析结果",
			},
			"difficulty": map[string]any{
				"type":        "string",
				"description": "难度级别 (beginner, intermediate, advanced)",
				"default":     tools.DefaultDifficulty,
			},
			"next_pieces": map[string]any{
				"type":        "integer",
				"description": "考虑的未来方块数量",
				"default":     tools.DefaultNextPieces,
				"minimum":     1,
			},
		},
		Required: []string{"game_state"},
	}

	return c.AddTool(tools.StrategyToolName,
		tools.StrategyDescription,
		InputSchema,
		func(ctx context.Context, args map[string]any) (interface{}, error) {
			state, err := gameStateArg(args)
			if err != nil {
				return tools.Reject(tools.StrategyToolName, tools.ReasonInvalidArgument, err.Error()), nil
			}
			difficulty, err := stringArg(args, "difficulty")
			if err != nil {
				return tools.Reject(tools.StrategyToolName, tools.ReasonInvalidArgument, err.Error()), nil
			}
			nextPieces, err := intArg(args, "next_pieces")
			if err != nil {
				return tools.Reject(tools.StrategyToolName, tools.ReasonInvalidArgument, err.Error()), nil
			}
			return strategy.Analyze(ctx, tools.StrategyArgs{
				GameState:  state,
				Difficulty: difficulty,
				NextPieces: nextPieces,
			}), nil
		})
}

// imageArg image_base64 优先于 image_input
func imageArg(args map[string]any) (interface{}, error) {
	encoded, err := stringArg(args, "image_base64")
	if err != nil {
		return nil, err
	}
	if encoded != "" {
		if idx := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && idx >= 0 {
			encoded = encoded[idx+len(";base64,"):]
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("image_base64 不是合法的base64: %v", err)
		}
		return data, nil
	}

	input, err := stringArg(args, "image_input")
	if err != nil {
		return nil, err
	}
	if input == "" {
		return nil, fmt.Errorf("image_input 和 image_base64 至少提供一个")
	}
	return input, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%s 必须是字符串", key)
	}
	return strings.TrimSpace(s), nil
}

// intArg 兼容 JSON 数字、json.Number 和数字字符串，缺省返回 0
func intArg(args map[string]any, key string) (int, error) {
	switch v := args[key].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s 必须是整数", key)
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%s 必须是整数", key)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s 必须是整数", key)
}

// gameStateArg 接受对象或 JSON 字符串
func gameStateArg(args map[string]any) (map[string]interface{}, error) {
	switch v := args["game_state"].(type) {
	case map[string]interface{}:
		return v, nil
	case string:
		var state map[string]interface{}
		if err := json.Unmarshal([]byte(v), &state); err != nil {
			return nil, fmt.Errorf("game_state 不是合法的JSON对象: %v", err)
		}
		return state, nil
	case nil:
		return nil, fmt.Errorf("game_state 不能为空")
	}
	return nil, fmt.Errorf("game_state 必须是对象")
}

// RegisterTetrisTools 注册两个俄罗斯方块工具
func (c *LocalClient) RegisterTetrisTools(vision *tools.VisionTool, strategy *tools.StrategyTool) error {
	if vision != nil {
		if err := c.AddToolVision(vision); err != nil {
			return err
		}
	}
	if strategy != nil {
		if err := c.AddToolStrategy(strategy); err != nil {
			return err
		}
	}
	c.logger.Info("本地工具注册完成", map[string]interface{}{"count": len(c.Tools())})
	return nil
}
