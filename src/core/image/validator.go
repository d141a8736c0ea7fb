package image

import (
	"bytes"
	"encoding/base64"
	stdimage "image"
	"strings"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/metrics"
	"tetris-agent-go/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// Validator 图片结构校验与编码。只解析文件头，不解码像素。
type Validator struct {
	config *configs.VisionToolConfig
	logger *utils.Logger
}

// NewValidator 创建图片校验器
func NewValidator(config *configs.VisionToolConfig, logger *utils.Logger) *Validator {
	return &Validator{
		config: config,
		logger: logger,
	}
}

// ValidateAndEncode 校验原始字节并编码为 base64。
// 大小检查最先执行，超限的数据不会进入解码和编码。
func (v *Validator) ValidateAndEncode(data []byte) (*EncodedPayload, error) {
	return v.validateAndEncode(data, true)
}

// ValidateAndEncodeSource 同 ValidateAndEncode。已解码图片的 JPEG 是本服务生成的，
// 不受 supported_formats 限制。
func (v *Validator) ValidateAndEncodeSource(src Source, data []byte) (*EncodedPayload, error) {
	return v.validateAndEncode(data, src.Kind() != KindDecoded)
}

func (v *Validator) validateAndEncode(data []byte, checkFormat bool) (*EncodedPayload, error) {
	payload, verr := v.validate(data, checkFormat)
	if verr != nil {
		metrics.ImageValidationFailuresTotal.WithLabelValues(string(verr.Reason)).Inc()
		v.logger.Warn("图片校验失败", map[string]interface{}{
			"reason":   verr.Reason,
			"size":     len(data),
			"detected": verr.Detected,
		})
		return nil, verr
	}

	metrics.ImageBytes.Observe(float64(payload.Size))
	v.logger.Debug("图片校验成功", map[string]interface{}{
		"format": payload.Format,
		"width":  payload.Width,
		"height": payload.Height,
		"size":   payload.Size,
	})
	return payload, nil
}

func (v *Validator) validate(data []byte, checkFormat bool) (*EncodedPayload, *ValidationError) {
	size := int64(len(data))

	// 1. 基础大小检查
	if v.config.MaxFileSize > 0 && size > v.config.MaxFileSize {
		verr := newValidationError(ReasonTooLarge, "图片太大: %d 字节，最大允许: %d 字节", size, v.config.MaxFileSize)
		verr.Size = size
		return nil, verr
	}

	// 2. 解析文件头
	config, format, err := stdimage.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, newValidationError(ReasonInvalidImageData, "无效的图片数据: %v", err)
	}

	// 3. 格式支持检查
	if checkFormat && !v.isFormatAllowed(format) {
		verr := newValidationError(ReasonUnsupportedFormat, "不支持的图片格式: %s", format)
		verr.Detected = format
		return nil, verr
	}

	// 4. 尺寸限制，0 表示不限制
	if v.config.MaxWidth > 0 && config.Width > v.config.MaxWidth ||
		v.config.MaxHeight > 0 && config.Height > v.config.MaxHeight {
		verr := newValidationError(ReasonTooLarge, "图片尺寸超限: %dx%d，最大允许: %dx%d",
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
		verr.Size = size
		return nil, verr
	}
	if totalPixels := int64(config.Width) * int64(config.Height); v.config.MaxPixels > 0 && totalPixels > v.config.MaxPixels {
		verr := newValidationError(ReasonTooLarge, "像素总数超限: %d，最大允许: %d", totalPixels, v.config.MaxPixels)
		verr.Size = size
		return nil, verr
	}

	// 5. 编码原始字节，避免二次压缩损失画质
	return &EncodedPayload{
		Data:   base64.StdEncoding.EncodeToString(data),
		Format: format,
		MIME:   detectMIME(data, format),
		Size:   size,
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

// isFormatAllowed 检查格式是否被允许，jpg 与 jpeg 等价
func (v *Validator) isFormatAllowed(format string) bool {
	formatLower := normalizeFormat(format)
	for _, allowedFormat := range v.config.SupportedFormats {
		if normalizeFormat(allowedFormat) == formatLower {
			return true
		}
	}
	return false
}

func normalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// detectMIME 根据魔数识别 MIME，识别不了时按解码格式推断
func detectMIME(data []byte, format string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown && strings.HasPrefix(kind.MIME.Value, "image/") {
		return kind.MIME.Value
	}
	return "image/" + normalizeFormat(format)
}
