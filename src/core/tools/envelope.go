// Package tools 实现俄罗斯方块视觉分析和策略分析两个工具。
// 工具从不返回 Go error，所有结果都是带 status 的 Envelope。
package tools

import (
	"errors"
	"fmt"

	"tetris-agent-go/src/core/image"
	"tetris-agent-go/src/core/metrics"

	"github.com/google/uuid"
)

// 工具名称，与注册到 MCP 的名称一致
const (
	VisionToolName   = "tetris_vision_analysis"
	StrategyToolName = "tetris_strategy_analysis"
)

// 结果状态
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Reason 错误码。图片相关错误码与 image 包一致。
type Reason string

const (
	ReasonUnsupportedInputType  = Reason(image.ReasonUnsupportedInputType)
	ReasonNotFound              = Reason(image.ReasonNotFound)
	ReasonReadFailed            = Reason(image.ReasonReadFailed)
	ReasonFetchFailed           = Reason(image.ReasonFetchFailed)
	ReasonInvalidImageData      = Reason(image.ReasonInvalidImageData)
	ReasonUnsupportedFormat     = Reason(image.ReasonUnsupportedFormat)
	ReasonTooLarge              = Reason(image.ReasonTooLarge)
	ReasonJSONNotFound          Reason = "json_not_found"
	ReasonJSONParseError        Reason = "json_parse_error"
	ReasonModelInvocationFailed Reason = "model_invocation_failed"
	ReasonInvalidArgument       Reason = "invalid_argument"
	ReasonInternal              Reason = "internal_error"
)

// Envelope 工具返回结果，至少包含 status
type Envelope map[string]interface{}

// Status 返回 success 或 error
func (e Envelope) Status() string {
	status, _ := e["status"].(string)
	return status
}

// IsSuccess 是否成功
func (e Envelope) IsSuccess() bool {
	return e.Status() == StatusSuccess
}

// Reason 错误码，成功时为空
func (e Envelope) Reason() Reason {
	reason, _ := e["reason"].(Reason)
	return reason
}

// Message 错误描述
func (e Envelope) Message() string {
	message, _ := e["message"].(string)
	return message
}

func success(fields map[string]interface{}) Envelope {
	env := Envelope{"status": StatusSuccess}
	for k, v := range fields {
		env[k] = v
	}
	return env
}

// Failure 构造错误结果
func Failure(reason Reason, message string) Envelope {
	return Envelope{
		"status":  StatusError,
		"reason":  reason,
		"message": message,
	}
}

// Reject 调用方参数在进入工具前就不合法时使用，
// 和工具自身返回的错误一样带 request_id 并计入指标
func Reject(tool string, reason Reason, message string) Envelope {
	env := Failure(reason, message)
	env["request_id"] = uuid.New().String()
	observe(tool, env)
	return env
}

// failureFromError 把图片校验错误还原为对应的错误码，并保留附加字段
func failureFromError(prefix string, err error) Envelope {
	var verr *image.ValidationError
	if !errors.As(err, &verr) {
		return Failure(ReasonInternal, fmt.Sprintf("%s: %v", prefix, err))
	}
	env := Failure(Reason(verr.Reason), verr.Message)
	if verr.Detected != "" {
		env["detected"] = verr.Detected
	}
	if verr.Size > 0 {
		env["size"] = verr.Size
	}
	if verr.StatusCode > 0 {
		env["status_code"] = verr.StatusCode
	}
	return env
}

// observe 记录调用结果指标
func observe(tool string, env Envelope) {
	metrics.ToolInvocationsTotal.WithLabelValues(tool, env.Status()).Inc()
	if !env.IsSuccess() {
		metrics.ToolErrorsTotal.WithLabelValues(tool, string(env.Reason())).Inc()
	}
}
