// Package prompts 生成视觉分析和策略分析的提示词，纯函数，无 I/O。
package prompts

import (
	"fmt"
	"strings"

	"tetris-agent-go/src/core/utils"
)

// DetailLevel 分析详细程度
type DetailLevel string

const (
	DetailBasic    DetailLevel = "basic"
	DetailDetailed DetailLevel = "detailed"
	DetailExpert   DetailLevel = "expert"
)

// DetailLevels 所有合法的详细程度
var DetailLevels = []DetailLevel{DetailBasic, DetailDetailed, DetailExpert}

// ParseDetailLevel 解析详细程度，大小写不敏感
func ParseDetailLevel(s string) (DetailLevel, error) {
	level := DetailLevel(strings.ToLower(strings.TrimSpace(s)))
	for _, valid := range DetailLevels {
		if level == valid {
			return level, nil
		}
	}
	return "", fmt.Errorf("无效的详细程度: %q (可选: basic, detailed, expert)", s)
}

// VisionSystemPrompt 视觉分析的系统提示词
const VisionSystemPrompt = `你是一个专业的俄罗斯方块游戏分析师，专门分析游戏截图并提取游戏状态信息。
请严格按照JSON格式回复，包含以下字段：
- current_score: 当前分数
- current_level: 当前等级
- lines_cleared: 已消除行数
- next_piece: 下一个方块类型
- hold_piece: Hold区域中的方块类型
- game_status: 游戏状态
- board_state: 棋盘状态描述
- active_piece: 当前活跃方块信息
- risks: 风险分析
- opportunities: 机会分析
- recommended_actions: 推荐操作`

const visionTemplate = `请分析这张俄罗斯方块游戏截图，提供详细的游戏状态信息。

需要分析的内容：
1. 当前游戏状态（playing-进行中, paused-暂停, game_over-游戏结束）
2. 当前分数、等级和已消除行数
3. 下一个方块预览和Hold区域中的方块
4. 游戏区域中现有的方块布局（10x20网格）
5. 当前活跃的方块位置、类型和方向
6. 潜在的风险和机会分析
7. 建议的最佳移动策略

详细程度要求: %s

请用严格的JSON格式回复，包含以下字段：
- current_score: 整数
- current_level: 整数
- lines_cleared: 整数
- next_piece: 字符串 (I, J, L, O, S, T, Z)
- hold_piece: 字符串 (I, J, L, O, S, T, Z 或 null)
- game_status: 字符串
- board_state: 字符串描述
- active_piece: 对象 {type: 类型, position: 位置, rotation: 旋转状态}
- risks: 字符串数组
- opportunities: 字符串数组
- recommended_actions: 字符串数组`

const (
	expertClause   = "额外要求：提供未来3步的预测和详细的策略分析。"
	detailedClause = "提供中等详细程度的分析，包括主要风险和机会。"
)

// VisionPrompt 根据详细程度生成截图分析提示词
func VisionPrompt(level DetailLevel) string {
	prompt := fmt.Sprintf(visionTemplate, level)
	switch level {
	case DetailExpert:
		prompt += "\n\n" + expertClause
	case DetailDetailed:
		prompt += "\n\n" + detailedClause
	}
	return prompt
}

// StrategySystemPrompt 策略分析的系统提示词
const StrategySystemPrompt = `你是一个俄罗斯方块策略专家，基于游戏状态提供专业的策略建议。
请用中文回复，提供具体、可操作的建议。`

// StrategySections 策略回复需要包含的段落，顺序固定
var StrategySections = []string{
	"立即行动建议 - 具体的移动操作",
	"中期策略规划 - 未来几步的布局思路",
	"风险预警 - 需要注意的危险情况",
	"机会识别 - 可以利用的优势机会",
	"分数优化建议 - 如何最大化得分",
}

// StrategyPrompt 根据游戏状态、难度和预览方块数生成策略提示词
func StrategyPrompt(state map[string]interface{}, difficulty string, nextPieces int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "基于以下俄罗斯方块游戏状态，提供%s难度的策略建议：\n\n", difficulty)
	fmt.Fprintf(&sb, "游戏状态: %s\n\n", utils.PrettyJSON(state))
	fmt.Fprintf(&sb, "考虑未来%d个方块的策略。\n\n", nextPieces)
	sb.WriteString("请提供：\n")
	for i, section := range StrategySections {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, section)
	}
	sb.WriteString("\n请用中文回复，提供具体、可操作的建议。")
	return sb.String()
}
