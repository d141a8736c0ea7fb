package llm

import (
	"context"
	"strings"
	"testing"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/types"

	"github.com/sashabaranov/go-openai"
)

type stubProvider struct {
	*BaseProvider
}

func (p *stubProvider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	return "ok", nil
}

func TestCreateFromConfig(t *testing.T) {
	Register("stub-test", func(config *Config) (Provider, error) {
		return &stubProvider{BaseProvider: NewBaseProvider(config)}, nil
	})

	cfg := configs.Default()
	cfg.LLM["vision"] = configs.LLMConfig{Type: "stub-test", ModelName: "glm-4v"}
	cfg.LLM["broken"] = configs.LLMConfig{Type: "nope"}

	tests := []struct {
		name    string
		ref     string
		wantErr string
	}{
		{"已注册后端", "vision", ""},
		{"未知后端", "broken", "未知的LLM提供者"},
		{"不存在的模型", "missing", "配置中不存在模型"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := CreateFromConfig(cfg, tt.ref)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateFromConfig() error = %v", err)
			}
			if provider.(*stubProvider).Config().ModelName != "glm-4v" {
				t.Error("config not passed to factory")
			}
		})
	}
}

func TestToChatMessages(t *testing.T) {
	messages := []types.Message{
		{Role: types.RoleSystem, Content: "系统提示"},
		{Role: types.RoleUser, Parts: []types.ContentPart{
			types.ImagePart("data:image/png;base64,AAAA"),
			types.TextPart("请分析"),
		}},
	}

	got := ToChatMessages(messages)
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].Content != "系统提示" || got[0].MultiContent != nil {
		t.Errorf("plain message = %+v", got[0])
	}

	parts := got[1].MultiContent
	if got[1].Content != "" || len(parts) != 2 {
		t.Fatalf("multimodal message = %+v", got[1])
	}
	if parts[0].Type != openai.ChatMessagePartTypeImageURL || parts[0].ImageURL.URL != "data:image/png;base64,AAAA" {
		t.Errorf("image part = %+v", parts[0])
	}
	if parts[1].Type != openai.ChatMessagePartTypeText || parts[1].Text != "请分析" {
		t.Errorf("text part = %+v", parts[1])
	}
}

func TestFirstChoice(t *testing.T) {
	if _, err := FirstChoice(openai.ChatCompletionResponse{}); err == nil {
		t.Error("expected error for empty choices")
	}
	resp := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Content: "hello"}},
	}}
	if got, _ := FirstChoice(resp); got != "hello" {
		t.Errorf("got %q", got)
	}
}
