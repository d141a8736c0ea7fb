package tools

import (
	"bytes"
	"context"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/metrics"
	"tetris-agent-go/src/core/types"
	"tetris-agent-go/src/core/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeProvider 记录收到的消息并返回固定回复
type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	panicMsg string
	delay    time.Duration
	calls    [][]types.Message
}

func (p *fakeProvider) Initialize() error { return nil }
func (p *fakeProvider) Cleanup() error    { return nil }

func (p *fakeProvider) Complete(ctx context.Context, messages []types.Message) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, messages)
	p.mu.Unlock()

	if p.panicMsg != "" {
		panic(p.panicMsg)
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.reply, p.err
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 10, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 10), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func newVisionTool(t *testing.T, provider *fakeProvider, mutate func(c *configs.VisionToolConfig)) *VisionTool {
	t.Helper()
	config := configs.DefaultVisionToolConfig()
	config.LLM = "vision"
	if mutate != nil {
		mutate(&config)
	}
	logger, _ := utils.NewTestLogger()
	tool, err := NewVisionTool(config, provider, logger)
	if err != nil {
		t.Fatalf("NewVisionTool() error = %v", err)
	}
	return tool
}

func TestVisionTool_Success(t *testing.T) {
	provider := &fakeProvider{reply: `Here is the result: {"current_score": 120} and done.`}
	tool := newVisionTool(t, provider, nil)

	env := tool.Analyze(context.Background(), VisionArgs{Image: pngBytes(t), DetailLevel: "expert"})
	if !env.IsSuccess() {
		t.Fatalf("envelope = %v", env)
	}
	if env["detail_level"] != "expert" || env["request_id"] == "" {
		t.Errorf("envelope = %v", env)
	}

	analysis := env["analysis"].(map[string]interface{})
	if analysis["parsing_status"] != "ok" || analysis["raw_response"] != provider.reply {
		t.Errorf("analysis = %v", analysis)
	}
	parsed := analysis["parsed_analysis"].(map[string]interface{})
	if _, ok := parsed["recommended_actions"]; !ok {
		t.Error("required key missing from parsed analysis")
	}

	// 消息结构：system + (image, text)
	if provider.callCount() != 1 {
		t.Fatalf("model called %d times", provider.callCount())
	}
	messages := provider.calls[0]
	if messages[0].Role != types.RoleSystem || len(messages[1].Parts) != 2 {
		t.Fatalf("messages = %v", messages)
	}
	if !strings.HasPrefix(messages[1].Parts[0].ImageURL, "data:image/png;base64,") {
		t.Errorf("image part = %.40s", messages[1].Parts[0].ImageURL)
	}
	if !strings.Contains(messages[1].Parts[1].Text, "额外要求") {
		t.Error("expert clause missing from prompt")
	}
}

func TestVisionTool_DefaultDetailLevel(t *testing.T) {
	provider := &fakeProvider{reply: "{}"}
	tool := newVisionTool(t, provider, func(c *configs.VisionToolConfig) { c.DetailLevel = "basic" })

	env := tool.Analyze(context.Background(), VisionArgs{Image: pngBytes(t)})
	if env["detail_level"] != "basic" {
		t.Errorf("detail_level = %v", env["detail_level"])
	}
}

func TestVisionTool_Errors(t *testing.T) {
	tests := []struct {
		name       string
		args       func(t *testing.T) VisionArgs
		mutate     func(c *configs.VisionToolConfig)
		wantReason Reason
	}{
		{
			name:       "不支持的输入类型",
			args:       func(t *testing.T) VisionArgs { return VisionArgs{Image: 42} },
			wantReason: ReasonUnsupportedInputType,
		},
		{
			name:       "文件不存在",
			args:       func(t *testing.T) VisionArgs { return VisionArgs{Image: "/no/such/screenshot.png"} },
			wantReason: ReasonNotFound,
		},
		{
			name:       "无效图片数据",
			args:       func(t *testing.T) VisionArgs { return VisionArgs{Image: []byte("not an image")} },
			wantReason: ReasonInvalidImageData,
		},
		{
			name:       "超过大小限制",
			args:       func(t *testing.T) VisionArgs { return VisionArgs{Image: make([]byte, 6*1024*1024)} },
			wantReason: ReasonTooLarge,
		},
		{
			name:       "格式不在白名单",
			args:       func(t *testing.T) VisionArgs { return VisionArgs{Image: pngBytes(t)} },
			mutate:     func(c *configs.VisionToolConfig) { c.SupportedFormats = []string{"jpeg"} },
			wantReason: ReasonUnsupportedFormat,
		},
		{
			name:       "无效详细程度",
			args:       func(t *testing.T) VisionArgs { return VisionArgs{Image: pngBytes(t), DetailLevel: "max"} },
			wantReason: ReasonInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{reply: "{}"}
			tool := newVisionTool(t, provider, tt.mutate)

			env := tool.Analyze(context.Background(), tt.args(t))
			if env.Status() != StatusError || env.Reason() != tt.wantReason {
				t.Fatalf("envelope = %v, want reason %s", env, tt.wantReason)
			}
			if env.Message() == "" {
				t.Error("error envelope without message")
			}
			if provider.callCount() != 0 {
				t.Error("model must not be called after a validation error")
			}
		})
	}
}

func TestVisionTool_TooLargeCarriesSize(t *testing.T) {
	tool := newVisionTool(t, &fakeProvider{}, nil)
	env := tool.Analyze(context.Background(), VisionArgs{Image: make([]byte, 6*1024*1024)})
	if env["size"] != int64(6291456) {
		t.Errorf("size = %v", env["size"])
	}
}

func TestVisionTool_ModelFailures(t *testing.T) {
	tests := []struct {
		name       string
		provider   *fakeProvider
		mutate     func(c *configs.VisionToolConfig)
		wantReason Reason
	}{
		{"模型返回错误", &fakeProvider{err: errors.New("rate limited")}, nil, ReasonModelInvocationFailed},
		{"模型超时", &fakeProvider{delay: time.Second}, func(c *configs.VisionToolConfig) { c.Timeout = 20 * time.Millisecond }, ReasonModelInvocationFailed},
		{"模型panic", &fakeProvider{panicMsg: "nil map"}, nil, ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := newVisionTool(t, tt.provider, tt.mutate)
			env := tool.Analyze(context.Background(), VisionArgs{Image: pngBytes(t)})
			if env.Reason() != tt.wantReason {
				t.Errorf("envelope = %v, want %s", env, tt.wantReason)
			}
			if env["request_id"] == nil {
				t.Error("request_id missing")
			}
		})
	}
}

func TestVisionTool_UnparseableReplyIsStillSuccess(t *testing.T) {
	provider := &fakeProvider{reply: "截图太模糊，无法识别"}
	tool := newVisionTool(t, provider, nil)

	env := tool.Analyze(context.Background(), VisionArgs{Image: pngBytes(t)})
	if !env.IsSuccess() {
		t.Fatalf("envelope = %v", env)
	}
	analysis := env["analysis"].(map[string]interface{})
	parsed := analysis["parsed_analysis"].(map[string]interface{})
	if analysis["parsing_status"] != "json_not_found" || parsed["text_analysis"] != provider.reply {
		t.Errorf("analysis = %v", analysis)
	}
}

func TestNewVisionTool_InvalidConfig(t *testing.T) {
	logger, _ := utils.NewTestLogger()
	config := configs.DefaultVisionToolConfig()

	if _, err := NewVisionTool(config, nil, logger); err == nil {
		t.Error("expected error without provider")
	}
	config.ExtractStrategy = "regex"
	if _, err := NewVisionTool(config, &fakeProvider{}, logger); err == nil {
		t.Error("expected error for unknown extract strategy")
	}
	config = configs.DefaultVisionToolConfig()
	config.DetailLevel = "ultra"
	if _, err := NewVisionTool(config, &fakeProvider{}, logger); err == nil {
		t.Error("expected error for unknown detail level")
	}
}

func newStrategyTool(t *testing.T, provider *fakeProvider) *StrategyTool {
	t.Helper()
	logger, _ := utils.NewTestLogger()
	config := configs.DefaultStrategyToolConfig()
	config.Verbose = true
	tool, err := NewStrategyTool(config, provider, logger)
	if err != nil {
		t.Fatalf("NewStrategyTool() error = %v", err)
	}
	return tool
}

func TestStrategyTool_Success(t *testing.T) {
	provider := &fakeProvider{reply: "1. 立即行动建议：把 T 块放到左侧"}
	tool := newStrategyTool(t, provider)
	state := map[string]interface{}{"current_score": 1200, "next_piece": "T"}

	env := tool.Analyze(context.Background(), StrategyArgs{GameState: state, Difficulty: "advanced", NextPieces: 5})
	if !env.IsSuccess() {
		t.Fatalf("envelope = %v", env)
	}
	if env["strategy_analysis"] != provider.reply || env["difficulty"] != "advanced" || env["next_pieces_considered"] != 5 {
		t.Errorf("envelope = %v", env)
	}
	if env["raw_game_state"].(map[string]interface{})["next_piece"] != "T" {
		t.Error("raw_game_state not echoed")
	}

	prompt := provider.calls[0][1].Content
	if !strings.Contains(prompt, "advanced难度") || !strings.Contains(prompt, "考虑未来5个方块") {
		t.Errorf("prompt = %s", prompt)
	}
}

func TestStrategyTool_Defaults(t *testing.T) {
	tests := []struct {
		name       string
		args       StrategyArgs
		wantDiff   string
		wantPieces int
	}{
		{"全部默认", StrategyArgs{}, "intermediate", 3},
		{"负数方块", StrategyArgs{NextPieces: -2, Difficulty: " beginner "}, "beginner", 3},
		{"零个方块", StrategyArgs{NextPieces: 0}, "intermediate", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := newStrategyTool(t, &fakeProvider{reply: "ok"})
			tt.args.GameState = map[string]interface{}{"current_level": 2}
			env := tool.Analyze(context.Background(), tt.args)
			if env["difficulty"] != tt.wantDiff || env["next_pieces_considered"] != tt.wantPieces {
				t.Errorf("envelope = %v", env)
			}
		})
	}
}

func TestStrategyTool_Errors(t *testing.T) {
	tool := newStrategyTool(t, &fakeProvider{err: errors.New("upstream 500")})

	env := tool.Analyze(context.Background(), StrategyArgs{})
	if env.Reason() != ReasonInvalidArgument {
		t.Errorf("empty state envelope = %v", env)
	}

	env = tool.Analyze(context.Background(), StrategyArgs{GameState: map[string]interface{}{"a": 1}})
	if env.Reason() != ReasonModelInvocationFailed || !strings.Contains(env.Message(), "upstream 500") {
		t.Errorf("model failure envelope = %v", env)
	}
}

func TestReject(t *testing.T) {
	invocations := metrics.ToolInvocationsTotal.WithLabelValues(StrategyToolName, StatusError)
	errorsByReason := metrics.ToolErrorsTotal.WithLabelValues(StrategyToolName, string(ReasonInvalidArgument))
	beforeCalls := testutil.ToFloat64(invocations)
	beforeErrors := testutil.ToFloat64(errorsByReason)

	env := Reject(StrategyToolName, ReasonInvalidArgument, "game_state 类型错误")
	if env.Status() != StatusError || env.Reason() != ReasonInvalidArgument {
		t.Errorf("envelope = %v", env)
	}
	if id, _ := env["request_id"].(string); id == "" {
		t.Error("envelope without request_id")
	}
	if got := testutil.ToFloat64(invocations) - beforeCalls; got != 1 {
		t.Errorf("invocations delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(errorsByReason) - beforeErrors; got != 1 {
		t.Errorf("errors delta = %v, want 1", got)
	}
}

func TestTools_ConcurrentInvocations(t *testing.T) {
	provider := &fakeProvider{reply: `{"current_score": 1}`}
	vision := newVisionTool(t, provider, nil)
	strategy := newStrategyTool(t, provider)
	data := pngBytes(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if env := vision.Analyze(context.Background(), VisionArgs{Image: data}); !env.IsSuccess() {
				t.Errorf("vision envelope = %v", env)
			}
		}()
		go func() {
			defer wg.Done()
			if env := strategy.Analyze(context.Background(), StrategyArgs{GameState: map[string]interface{}{"x": 1}}); !env.IsSuccess() {
				t.Errorf("strategy envelope = %v", env)
			}
		}()
	}
	wg.Wait()

	if provider.callCount() != 16 {
		t.Errorf("model called %d times, want 16", provider.callCount())
	}
}
