package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	stdimage "image"
	"image/png"
	"sync"
	"testing"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/tools"
	"tetris-agent-go/src/core/types"
	"tetris-agent-go/src/core/utils"
)

type echoProvider struct {
	reply string
}

func (p *echoProvider) Initialize() error { return nil }
func (p *echoProvider) Cleanup() error    { return nil }
func (p *echoProvider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	return p.reply, nil
}

type memoryRecorder struct {
	mu      sync.Mutex
	records []CallRecord
}

func (r *memoryRecorder) Record(ctx context.Context, record CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func newTestClient(t *testing.T) *LocalClient {
	t.Helper()
	logger, _ := utils.NewTestLogger()
	provider := &echoProvider{reply: `{"current_score": 10}`}

	vision, err := tools.NewVisionTool(configs.DefaultVisionToolConfig(), provider, logger)
	if err != nil {
		t.Fatalf("NewVisionTool() error = %v", err)
	}
	strategy, err := tools.NewStrategyTool(configs.DefaultStrategyToolConfig(), provider, logger)
	if err != nil {
		t.Fatalf("NewStrategyTool() error = %v", err)
	}

	client := NewLocalClient(logger)
	if err := client.RegisterTetrisTools(vision, strategy); err != nil {
		t.Fatalf("RegisterTetrisTools() error = %v", err)
	}
	return client
}

func screenshotBase64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, stdimage.NewGray(stdimage.Rect(0, 0, 10, 20))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestLocalClient_Registry(t *testing.T) {
	client := newTestClient(t)

	if !client.HasTool(tools.VisionToolName) || !client.HasTool("local_"+tools.StrategyToolName) {
		t.Error("registered tools not found")
	}
	if client.HasTool("get_time") {
		t.Error("unexpected tool")
	}
	if err := client.AddTool(tools.VisionToolName, "dup", ToolInputSchema{Type: "object"}, nil); err == nil {
		t.Error("duplicate registration should fail")
	}

	defs := client.GetAvailableTools()
	if len(defs) != 2 {
		t.Fatalf("got %d tool definitions", len(defs))
	}
	if defs[0].Function.Name != "local_"+tools.VisionToolName {
		t.Errorf("name = %s", defs[0].Function.Name)
	}
	params := defs[0].Function.Parameters.(map[string]interface{})
	if required, ok := params["required"].([]string); !ok || required == nil {
		t.Errorf("required = %#v, want empty slice", params["required"])
	}
}

func TestLocalClient_CallTool(t *testing.T) {
	client := newTestClient(t)
	recorder := &memoryRecorder{}
	client.SetRecorder(recorder)
	ctx := context.Background()

	tests := []struct {
		name       string
		tool       string
		args       map[string]interface{}
		wantStatus string
		wantReason tools.Reason
	}{
		{
			name:       "base64截图",
			tool:       tools.VisionToolName,
			args:       map[string]interface{}{"image_base64": "data:image/png;base64," + screenshotBase64(t), "detail_level": "basic"},
			wantStatus: tools.StatusSuccess,
		},
		{
			name:       "缺少图片",
			tool:       tools.VisionToolName,
			args:       map[string]interface{}{},
			wantStatus: tools.StatusError,
			wantReason: tools.ReasonInvalidArgument,
		},
		{
			name:       "非法base64",
			tool:       tools.VisionToolName,
			args:       map[string]interface{}{"image_base64": "@@@"},
			wantStatus: tools.StatusError,
			wantReason: tools.ReasonInvalidArgument,
		},
		{
			name:       "文件不存在",
			tool:       tools.VisionToolName,
			args:       map[string]interface{}{"image_input": "/tmp/definitely-missing-tetris.png"},
			wantStatus: tools.StatusError,
			wantReason: tools.ReasonNotFound,
		},
		{
			name:       "策略对象参数",
			tool:       "local_" + tools.StrategyToolName,
			args:       map[string]interface{}{"game_state": map[string]interface{}{"current_score": 10}, "next_pieces": float64(2)},
			wantStatus: tools.StatusSuccess,
		},
		{
			name:       "策略字符串参数",
			tool:       tools.StrategyToolName,
			args:       map[string]interface{}{"game_state": `{"current_level": 4}`, "next_pieces": "4"},
			wantStatus: tools.StatusSuccess,
		},
		{
			name:       "策略参数类型错误",
			tool:       tools.StrategyToolName,
			args:       map[string]interface{}{"game_state": 12},
			wantStatus: tools.StatusError,
			wantReason: tools.ReasonInvalidArgument,
		},
		{
			name:       "方块数不是整数",
			tool:       tools.StrategyToolName,
			args:       map[string]interface{}{"game_state": map[string]interface{}{"a": 1}, "next_pieces": []int{1}},
			wantStatus: tools.StatusError,
			wantReason: tools.ReasonInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := client.CallTool(ctx, tt.tool, tt.args)
			if err != nil {
				t.Fatalf("CallTool() error = %v", err)
			}
			env := result.(tools.Envelope)
			if env.Status() != tt.wantStatus || env.Reason() != tt.wantReason {
				t.Errorf("envelope = %v", env)
			}
			if id, _ := env["request_id"].(string); id == "" {
				t.Errorf("envelope without request_id: %v", env)
			}
		})
	}

	if len(recorder.records) != len(tests) {
		t.Errorf("recorded %d calls, want %d", len(recorder.records), len(tests))
	}

	if _, err := client.CallTool(ctx, "play_music", nil); err == nil {
		t.Error("unknown tool should return an error")
	}
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		value   interface{}
		want    int
		wantErr bool
	}{
		{"缺省", nil, 0, false},
		{"浮点", float64(3), 3, false},
		{"json.Number", json.Number("7"), 7, false},
		{"字符串", " 5 ", 5, false},
		{"非法字符串", "five", 0, true},
		{"布尔", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := intArg(map[string]any{"n": tt.value}, "n")
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("intArg() = %d, %v", got, err)
			}
		})
	}
}

func handle(t *testing.T, client *LocalClient, message string) map[string]interface{} {
	t.Helper()
	s, err := NewServer(client, "test")
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	resp := s.HandleMessage(context.Background(), json.RawMessage(message))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if decoded["error"] != nil {
		t.Fatalf("jsonrpc error: %s", data)
	}
	return decoded["result"].(map[string]interface{})
}

func TestServer_ListTools(t *testing.T) {
	result := handle(t, newTestClient(t), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)

	list := result["tools"].([]interface{})
	if len(list) != 2 {
		t.Fatalf("got %d tools", len(list))
	}
	names := map[string]bool{}
	for _, item := range list {
		tool := item.(map[string]interface{})
		names[tool["name"].(string)] = true
		if tool["inputSchema"].(map[string]interface{})["type"] != "object" {
			t.Errorf("tool %v has no object schema", tool["name"])
		}
	}
	if !names[tools.VisionToolName] || !names[tools.StrategyToolName] {
		t.Errorf("names = %v", names)
	}
}

func TestServer_CallTool(t *testing.T) {
	client := newTestClient(t)

	ok := handle(t, client, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"tetris_strategy_analysis","arguments":{"game_state":{"current_score":1}}}}`)
	if ok["isError"] == true {
		t.Errorf("unexpected error result: %v", ok)
	}
	text := ok["content"].([]interface{})[0].(map[string]interface{})["text"].(string)
	var env map[string]interface{}
	if err := json.Unmarshal([]byte(text), &env); err != nil || env["status"] != "success" {
		t.Errorf("content = %s", text)
	}

	failed := handle(t, client, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"tetris_vision_analysis","arguments":{}}}`)
	if failed["isError"] != true {
		t.Errorf("error envelope should be flagged: %v", failed)
	}
}
