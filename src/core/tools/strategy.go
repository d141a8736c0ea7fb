package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/metrics"
	"tetris-agent-go/src/core/prompts"
	"tetris-agent-go/src/core/types"
	"tetris-agent-go/src/core/utils"

	"github.com/google/uuid"
)

// StrategyDescription 策略分析工具说明
const StrategyDescription = `俄罗斯方块策略分析工具。基于游戏状态提供策略建议。

参数:
    game_state: 游戏状态（包含分数、等级、方块布局等信息）
    difficulty: 难度级别 (beginner, intermediate, advanced)
    next_pieces: 考虑的未来方块数量

返回:
    包含策略建议的结果，包括具体操作建议和风险评估`

const (
	DefaultDifficulty = "intermediate"
	DefaultNextPieces = 3
)

// StrategyArgs 单次策略分析的参数
type StrategyArgs struct {
	GameState  map[string]interface{}
	Difficulty string
	NextPieces int
}

// StrategyTool 俄罗斯方块策略分析工具
type StrategyTool struct {
	config   configs.StrategyToolConfig
	provider types.LLMProvider
	logger   *utils.Logger
}

// NewStrategyTool 创建策略分析工具
func NewStrategyTool(config configs.StrategyToolConfig, provider types.LLMProvider, logger *utils.Logger) (*StrategyTool, error) {
	if provider == nil {
		return nil, fmt.Errorf("策略分析工具缺少模型提供者")
	}
	return &StrategyTool{config: config, provider: provider, logger: logger}, nil
}

// Analyze 根据游戏状态生成策略建议
func (t *StrategyTool) Analyze(ctx context.Context, args StrategyArgs) (env Envelope) {
	requestID := uuid.New().String()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("策略生成发生panic", map[string]interface{}{
				"request_id": requestID,
				"panic":      fmt.Sprint(r),
				"stack":      string(debug.Stack()),
			})
			env = Failure(ReasonInternal, fmt.Sprintf("策略生成失败: %v", r))
		}
		env["request_id"] = requestID
		observe(StrategyToolName, env)
	}()

	if len(args.GameState) == 0 {
		return Failure(ReasonInvalidArgument, "game_state 不能为空")
	}
	difficulty := strings.TrimSpace(args.Difficulty)
	if difficulty == "" {
		difficulty = DefaultDifficulty
	}
	nextPieces := args.NextPieces
	if nextPieces < 1 {
		nextPieces = DefaultNextPieces
	}

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	messages := []types.Message{
		{Role: types.RoleSystem, Content: prompts.StrategySystemPrompt},
		{Role: types.RoleUser, Content: prompts.StrategyPrompt(args.GameState, difficulty, nextPieces)},
	}
	if t.config.Verbose {
		t.logger.Debug("策略提示词", map[string]interface{}{
			"request_id": requestID,
			"prompt":     messages[1].Content,
		})
	}

	callStart := time.Now()
	reply, err := t.provider.Complete(ctx, messages)
	if err != nil {
		metrics.ModelCallDuration.WithLabelValues(StrategyToolName, "error").Observe(time.Since(callStart).Seconds())
		t.logger.Error("策略生成失败", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return Failure(ReasonModelInvocationFailed, fmt.Sprintf("策略生成失败: %v", err))
	}
	metrics.ModelCallDuration.WithLabelValues(StrategyToolName, "ok").Observe(time.Since(callStart).Seconds())

	if t.config.Verbose {
		t.logger.Debug("策略生成完成", map[string]interface{}{
			"request_id": requestID,
			"response":   reply,
		})
	}

	return success(map[string]interface{}{
		"strategy_analysis":      reply,
		"difficulty":             difficulty,
		"next_pieces_considered": nextPieces,
		"raw_game_state":         args.GameState,
	})
}
