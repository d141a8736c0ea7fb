package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/extract"
	"tetris-agent-go/src/core/image"
	"tetris-agent-go/src/core/metrics"
	"tetris-agent-go/src/core/prompts"
	"tetris-agent-go/src/core/types"
	"tetris-agent-go/src/core/utils"

	"github.com/google/uuid"
)

// VisionDescription 视觉分析工具说明
const VisionDescription = `俄罗斯方块游戏视觉分析工具。分析游戏截图并提取游戏状态信息。

参数:
    image_input: 游戏截图，支持URL、文件路径、字节数据或已解码图像
    detail_level: 分析详细程度 (basic, detailed, expert)

返回:
    包含游戏状态分析的结果，包括分数、等级、方块布局等信息`

// VisionArgs 单次视觉分析的参数
type VisionArgs struct {
	Image       interface{} // string(URL/路径) | []byte | image.Image | image.Source
	DetailLevel string      // 为空时使用配置中的默认值
}

// VisionTool 俄罗斯方块截图分析工具，无跨请求状态，可并发调用
type VisionTool struct {
	config    configs.VisionToolConfig
	provider  types.LLMProvider
	resolver  *image.Resolver
	validator *image.Validator
	extractor *extract.Extractor
	logger    *utils.Logger
}

// NewVisionTool 创建视觉分析工具
func NewVisionTool(config configs.VisionToolConfig, provider types.LLMProvider, logger *utils.Logger) (*VisionTool, error) {
	if provider == nil {
		return nil, fmt.Errorf("视觉分析工具缺少模型提供者")
	}
	if _, err := prompts.ParseDetailLevel(config.DetailLevel); err != nil {
		return nil, err
	}
	strategy, err := extract.ParseStrategy(config.ExtractStrategy)
	if err != nil {
		return nil, err
	}

	tool := &VisionTool{
		config:    config,
		provider:  provider,
		extractor: extract.New(strategy),
		logger:    logger,
	}
	tool.resolver = image.NewResolver(config.MaxFileSize, logger)
	tool.validator = image.NewValidator(&tool.config, logger)
	return tool, nil
}

// Resolver 暴露图片解析器，测试中用于替换 HTTP 客户端
func (t *VisionTool) Resolver() *image.Resolver {
	return t.resolver
}

// Analyze 分析一张游戏截图
func (t *VisionTool) Analyze(ctx context.Context, args VisionArgs) (env Envelope) {
	requestID := uuid.New().String()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("视觉分析发生panic", map[string]interface{}{
				"request_id": requestID,
				"panic":      fmt.Sprint(r),
				"stack":      string(debug.Stack()),
			})
			env = Failure(ReasonInternal, fmt.Sprintf("游戏分析失败: %v", r))
		}
		env["request_id"] = requestID
		observe(VisionToolName, env)
		t.logger.Info("视觉分析完成", map[string]interface{}{
			"request_id": requestID,
			"status":     env.Status(),
			"reason":     env.Reason(),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}()

	levelName := args.DetailLevel
	if levelName == "" {
		levelName = t.config.DetailLevel
	}
	level, err := prompts.ParseDetailLevel(levelName)
	if err != nil {
		return Failure(ReasonInvalidArgument, err.Error())
	}

	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	// 图片获取与校验
	source, err := image.ParseSource(args.Image)
	if err != nil {
		return failureFromError("图片处理失败", err)
	}
	data, err := t.resolver.Resolve(ctx, source)
	if err != nil {
		return failureFromError("图片处理失败", err)
	}
	payload, err := t.validator.ValidateAndEncodeSource(source, data)
	if err != nil {
		return failureFromError("图片处理失败", err)
	}

	// 模型调用
	messages := []types.Message{
		{Role: types.RoleSystem, Content: prompts.VisionSystemPrompt},
		{Role: types.RoleUser, Parts: []types.ContentPart{
			types.ImagePart(payload.DataURL()),
			types.TextPart(prompts.VisionPrompt(level)),
		}},
	}
	callStart := time.Now()
	reply, err := t.provider.Complete(ctx, messages)
	if err != nil {
		metrics.ModelCallDuration.WithLabelValues(VisionToolName, "error").Observe(time.Since(callStart).Seconds())
		t.logger.Error("游戏分析生成失败", map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		})
		return Failure(ReasonModelInvocationFailed, fmt.Sprintf("游戏分析生成失败: %v", err))
	}
	metrics.ModelCallDuration.WithLabelValues(VisionToolName, "ok").Observe(time.Since(callStart).Seconds())

	if t.config.Verbose {
		t.logger.Debug("俄罗斯方块分析生成", map[string]interface{}{
			"request_id": requestID,
			"response":   reply,
		})
	}

	// 结构化解析。解析失败不是工具错误，原文随结果返回供人工查看。
	result := t.extractor.Extract(reply)
	metrics.ExtractionsTotal.WithLabelValues(string(result.Status)).Inc()
	if !result.OK() {
		t.logger.Warn("模型回复解析失败", map[string]interface{}{
			"request_id": requestID,
			"status":     result.Status,
			"preview":    utils.TruncateText(reply, 120),
		})
	}

	return success(map[string]interface{}{
		"analysis": map[string]interface{}{
			"raw_response":    reply,
			"parsed_analysis": result.Analysis(),
			"parsing_status":  string(result.Status),
			"detail_level":    string(level),
		},
		"detail_level": string(level),
		"image": map[string]interface{}{
			"format": payload.Format,
			"mime":   payload.MIME,
			"size":   payload.Size,
			"width":  payload.Width,
			"height": payload.Height,
		},
	})
}
