package image

import (
	"context"
	"fmt"
	stdimage "image"
	"net/url"
)

// Reason 图片处理错误码
type Reason string

const (
	ReasonUnsupportedInputType Reason = "unsupported_input_type"
	ReasonNotFound             Reason = "not_found"
	ReasonReadFailed           Reason = "read_failed"
	ReasonFetchFailed          Reason = "fetch_failed"
	ReasonInvalidImageData     Reason = "invalid_image_data"
	ReasonUnsupportedFormat    Reason = "unsupported_format"
	ReasonTooLarge             Reason = "too_large"
)

// ValidationError 图片获取或校验失败，对本次请求是终止性的
type ValidationError struct {
	Reason     Reason `json:"reason"`
	Message    string `json:"message"`
	Detected   string `json:"detected,omitempty"`    // unsupported_format 时检测到的格式
	Size       int64  `json:"size,omitempty"`        // too_large 时的字节数
	StatusCode int    `json:"status_code,omitempty"` // fetch_failed 时的 HTTP 状态码
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func newValidationError(reason Reason, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// SourceKind 图片来源类型
type SourceKind string

const (
	KindURL     SourceKind = "url"
	KindFile    SourceKind = "file"
	KindBytes   SourceKind = "bytes"
	KindDecoded SourceKind = "decoded"
)

// Source 图片来源。fetch 未导出，变体只能在本包内定义，
// 每个变体自带获取逻辑，Resolver 不做运行时类型分支。
type Source interface {
	Kind() SourceKind
	fetch(ctx context.Context, r *Resolver) ([]byte, error)
}

// URLSource 远程图片地址
type URLSource struct {
	URL string
}

// FileSource 本地图片路径
type FileSource struct {
	Path string
}

// BytesSource 原始图片字节
type BytesSource struct {
	Data []byte
}

// DecodedSource 已解码的内存图片，发送前需重新编码为 JPEG
type DecodedSource struct {
	Image stdimage.Image
}

func (URLSource) Kind() SourceKind     { return KindURL }
func (FileSource) Kind() SourceKind    { return KindFile }
func (BytesSource) Kind() SourceKind   { return KindBytes }
func (DecodedSource) Kind() SourceKind { return KindDecoded }

// IsURL 同时具备 scheme 和 host 才视为 URL
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ParseSource 把工具入参归类为图片来源
func ParseSource(input interface{}) (Source, error) {
	switch v := input.(type) {
	case Source:
		return v, nil
	case string:
		if IsURL(v) {
			return URLSource{URL: v}, nil
		}
		return FileSource{Path: v}, nil
	case []byte:
		return BytesSource{Data: v}, nil
	case stdimage.Image:
		return DecodedSource{Image: v}, nil
	}
	return nil, newValidationError(ReasonUnsupportedInputType, "不支持的图片输入格式: %T", input)
}

// EncodedPayload base64 编码后的图片及其 MIME
type EncodedPayload struct {
	Data   string `json:"-"`
	Format string `json:"format"`
	MIME   string `json:"mime"`
	Size   int64  `json:"size"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DataURL 生成内联 data URI
func (p *EncodedPayload) DataURL() string {
	return "data:" + p.MIME + ";base64," + p.Data
}
