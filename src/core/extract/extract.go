// Package extract 从模型的自由文本回复中恢复结构化的游戏状态。
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Status 解析结果状态
type Status string

const (
	StatusOK             Status = "ok"
	StatusJSONNotFound   Status = "json_not_found"
	StatusJSONParseError Status = "json_parse_error"
)

// Strategy JSON 定位策略
type Strategy string

const (
	// StrategyBalanced 逐个尝试平衡括号包围的片段，忽略字符串内的括号
	StrategyBalanced Strategy = "balanced"
	// StrategyGreedy 取第一个 { 到最后一个 } 之间的内容
	StrategyGreedy Strategy = "greedy"
)

// ParseStrategy 解析配置中的策略名，空值使用 balanced
func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case "", StrategyBalanced:
		return StrategyBalanced, nil
	case StrategyGreedy:
		return StrategyGreedy, nil
	}
	return "", fmt.Errorf("未知的解析策略: %s", name)
}

// 游戏状态的固定字段，缺失时补 null
const (
	KeyCurrentScore       = "current_score"
	KeyCurrentLevel       = "current_level"
	KeyLinesCleared       = "lines_cleared"
	KeyNextPiece          = "next_piece"
	KeyHoldPiece          = "hold_piece"
	KeyGameStatus         = "game_status"
	KeyBoardState         = "board_state"
	KeyActivePiece        = "active_piece"
	KeyRisks              = "risks"
	KeyOpportunities      = "opportunities"
	KeyRecommendedActions = "recommended_actions"
)

// RequiredKeys 按提示词中的顺序排列
var RequiredKeys = []string{
	KeyCurrentScore,
	KeyCurrentLevel,
	KeyLinesCleared,
	KeyNextPiece,
	KeyHoldPiece,
	KeyGameStatus,
	KeyBoardState,
	KeyActivePiece,
	KeyRisks,
	KeyOpportunities,
	KeyRecommendedActions,
}

// GameState 模型识别出的游戏状态。固定字段一定存在（可能为 nil），其余字段原样保留。
type GameState map[string]interface{}

// Missing 返回值为 nil 的固定字段
func (g GameState) Missing() []string {
	var missing []string
	for _, key := range RequiredKeys {
		if g[key] == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

// Result 解析结果。Status 区分：没有 JSON、JSON 格式错误、JSON 正常（字段可能缺失）。
type Result struct {
	Status  Status    `json:"parsing_status"`
	Record  GameState `json:"record,omitempty"`
	RawText string    `json:"text_analysis,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// OK 是否解析成功
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Analysis 返回放入工具结果的分析内容：成功时为记录本身，
// 失败时为 {text_analysis, parsing_status, error}，保留原文供人工查看。
func (r Result) Analysis() map[string]interface{} {
	if r.OK() {
		return r.Record
	}
	analysis := map[string]interface{}{
		"text_analysis":  r.RawText,
		"parsing_status": string(r.Status),
	}
	if r.Error != "" {
		analysis["error"] = r.Error
	}
	return analysis
}

// Extractor 响应解析器，无状态，可并发使用
type Extractor struct {
	Strategy Strategy
}

// New 创建指定策略的解析器
func New(strategy Strategy) *Extractor {
	return &Extractor{Strategy: strategy}
}

// Extract 使用默认的 balanced 策略解析
func Extract(text string) Result {
	return New(StrategyBalanced).Extract(text)
}

// Extract 从文本中提取 JSON 对象
func (e *Extractor) Extract(text string) Result {
	if !hasBracePair(text) {
		return Result{Status: StatusJSONNotFound, RawText: text}
	}

	var (
		obj map[string]interface{}
		err error
	)
	switch e.Strategy {
	case StrategyGreedy:
		obj, err = decodeObject(greedySpan(text))
	default:
		obj, err = bestBalancedObject(text)
	}
	if err != nil {
		return Result{
			Status:  StatusJSONParseError,
			RawText: text,
			Error:   fmt.Sprintf("Failed to parse JSON response: %v", err),
		}
	}

	record := GameState(obj)
	for _, key := range RequiredKeys {
		if _, ok := record[key]; !ok {
			record[key] = nil
		}
	}
	return Result{Status: StatusOK, Record: record}
}

// hasBracePair 是否存在一个 { 且其后还有 }
func hasBracePair(text string) bool {
	start := strings.IndexByte(text, '{')
	return start >= 0 && strings.LastIndexByte(text, '}') > start
}

func greedySpan(text string) string {
	return text[strings.IndexByte(text, '{') : strings.LastIndexByte(text, '}')+1]
}

var errNoBalancedObject = errors.New("no balanced JSON object found")

// bestBalancedObject 从每个 { 出发寻找配平的 }，按出现顺序返回第一个含有已知字段的对象。
// 没有含已知字段的对象时取最长的可解析片段，如正文里的 {} 不会盖过真正的记录。
// 都解析失败时返回第一个候选的错误。
func bestBalancedObject(text string) (map[string]interface{}, error) {
	var (
		firstErr error
		fallback map[string]interface{}
		longest  int
	)
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > start {
			obj, err := decodeObject(text[start : end+1])
			switch {
			case err != nil:
				if firstErr == nil {
					firstErr = err
				}
			case hasRecognizedKey(obj):
				return obj, nil
			case end+1-start > longest:
				fallback, longest = obj, end+1-start
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	if fallback != nil {
		return fallback, nil
	}
	if firstErr == nil {
		firstErr = errNoBalancedObject
	}
	return nil, firstErr
}

func hasRecognizedKey(obj map[string]interface{}) bool {
	for _, key := range RequiredKeys {
		if _, ok := obj[key]; ok {
			return true
		}
	}
	return false
}

// matchBrace 返回与 text[start] 处 { 配对的 } 下标，跳过 JSON 字符串中的括号；找不到返回 -1
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// decodeObject 解析单个 JSON 对象，数字保留为 json.Number
func decodeObject(raw string) (map[string]interface{}, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var obj map[string]interface{}
	if err := decoder.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("JSON value is not an object")
	}
	// 对象之后不允许还有其他内容
	if _, err := decoder.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON object")
	}
	return obj, nil
}

// Marshal 把结果序列化为紧凑 JSON，供日志和持久化使用
func (r Result) Marshal() []byte {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(r.Analysis()); err != nil {
		return []byte("{}")
	}
	return bytes.TrimSpace(buf.Bytes())
}
