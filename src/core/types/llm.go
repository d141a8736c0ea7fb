package types

import (
	"context"
	"encoding/json"
	"fmt"
)

// 对话角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentPartType 多模态消息片段类型
type ContentPartType string

const (
	PartText     ContentPartType = "text"
	PartImageURL ContentPartType = "image_url"
)

// ContentPart 多模态消息片段：文本或内联 data URI 图片
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL string          `json:"image_url,omitempty"`
}

// TextPart 构造文本片段
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart 构造图片片段，url 一般是 data:image/png;base64,...
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: url}
}

// Message 对话消息结构。Parts 非空时 Content 被忽略。
type Message struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []ContentPart `json:"parts,omitempty"`
}

// IsMultimodal 是否为多片段消息
func (m Message) IsMultimodal() bool {
	return len(m.Parts) > 0
}

// String 调试输出，图片片段只保留长度
func (m Message) String() string {
	if !m.IsMultimodal() {
		return fmt.Sprintf("%s: %s", m.Role, m.Content)
	}
	view := make([]map[string]interface{}, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch part.Type {
		case PartImageURL:
			view = append(view, map[string]interface{}{"type": part.Type, "image_url_len": len(part.ImageURL)})
		default:
			view = append(view, map[string]interface{}{"type": part.Type, "text": part.Text})
		}
	}
	data, _ := json.Marshal(view)
	return fmt.Sprintf("%s: %s", m.Role, data)
}

// Provider 基础提供者接口
type Provider interface {
	Initialize() error
	Cleanup() error
}

// LLMProvider 大语言模型提供者接口。
// Complete 是唯一的模型调用边界：一次请求、一段完整回复，不做重试。
type LLMProvider interface {
	Provider
	Complete(ctx context.Context, messages []Message) (string, error)
}
