package api

// VisionJSONRequest JSON 方式提交的视觉分析请求
type VisionJSONRequest struct {
	ImageURL    string `json:"image_url"`
	ImageBase64 string `json:"image_base64"`
	DetailLevel string `json:"detail_level"`
}

// ErrorResponse 认证或请求格式错误时的响应，工具本身的错误使用工具结果
type ErrorResponse struct {
	Status  string `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ToolInfo 工具列表中的一项
type ToolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"input_schema"`
}

// AuthVerifyResult 认证验证结果
type AuthVerifyResult struct {
	IsValid  bool
	DeviceID string
}
