package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StripThinkTags 去掉推理模型输出中的 <think>...</think> 段落。
// 未闭合的 <think> 之后的内容全部丢弃。
func StripThinkTags(content string) string {
	var sb strings.Builder
	rest := content
	for {
		start := strings.Index(rest, "<think>")
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		end := strings.Index(rest[start:], "</think>")
		if end < 0 {
			break
		}
		rest = rest[start+end+len("</think>"):]
	}
	return strings.TrimSpace(sb.String())
}

// TruncateText 按字符截断文本用于日志输出
func TruncateText(text string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}

// PrettyJSON 以缩进、不转义非ASCII字符的方式序列化任意值。
// 无法序列化时退回 %v 格式，保证总有输出。
func PrettyJSON(v interface{}) string {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
