package prompts

import (
	"strings"
	"testing"
)

func TestParseDetailLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DetailLevel
		wantErr bool
	}{
		{"basic", "basic", DetailBasic, false},
		{"大写加空格", " Expert ", DetailExpert, false},
		{"detailed", "detailed", DetailDetailed, false},
		{"未知级别", "verbose", "", true},
		{"空字符串", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDetailLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVisionPrompt_Clauses(t *testing.T) {
	tests := []struct {
		level        DetailLevel
		wantExpert   bool
		wantDetailed bool
	}{
		{DetailBasic, false, false},
		{DetailDetailed, false, true},
		{DetailExpert, true, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			prompt := VisionPrompt(tt.level)
			if !strings.Contains(prompt, "详细程度要求: "+string(tt.level)) {
				t.Error("prompt does not echo detail level")
			}
			if got := strings.Contains(prompt, expertClause); got != tt.wantExpert {
				t.Errorf("expert clause present = %v", got)
			}
			if got := strings.Contains(prompt, detailedClause); got != tt.wantDetailed {
				t.Errorf("detailed clause present = %v", got)
			}
		})
	}
}

func TestVisionPrompt_ListsAllFields(t *testing.T) {
	fields := []string{
		"current_score", "current_level", "lines_cleared", "next_piece", "hold_piece",
		"game_status", "board_state", "active_piece", "risks", "opportunities", "recommended_actions",
	}
	for _, prompt := range []string{VisionPrompt(DetailBasic), VisionSystemPrompt} {
		for _, field := range fields {
			if !strings.Contains(prompt, "- "+field+":") {
				t.Errorf("field %s not listed", field)
			}
		}
	}
}

func TestStrategyPrompt_SectionOrder(t *testing.T) {
	state := map[string]interface{}{
		"current_score": 1200,
		"next_piece":    "T",
		"board_state":   "右侧堆叠较高",
	}
	prompt := StrategyPrompt(state, "intermediate", 3)

	for _, want := range []string{"intermediate难度", "考虑未来3个方块", `"board_state": "右侧堆叠较高"`} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	last := -1
	for _, section := range []string{"立即行动建议", "中期策略规划", "风险预警", "机会识别", "分数优化建议"} {
		idx := strings.Index(prompt, section)
		if idx < 0 {
			t.Fatalf("section %s missing", section)
		}
		if idx <= last {
			t.Errorf("section %s out of order", section)
		}
		last = idx
	}

	if StrategyPrompt(state, "intermediate", 3) != prompt {
		t.Error("prompt is not deterministic")
	}
}

func TestStrategyPrompt_Total(t *testing.T) {
	// 无法序列化的值退回 %v 格式
	state := map[string]interface{}{"callback": func() {}}
	prompt := StrategyPrompt(state, "", 0)
	if !strings.Contains(prompt, "游戏状态: map[") {
		t.Errorf("fallback formatting not used: %s", prompt)
	}
	if !strings.Contains(StrategyPrompt(nil, "advanced", 5), "游戏状态: null") {
		t.Error("nil state should serialize as null")
	}
}
