package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"tetris-agent-go/src/configs"
	"tetris-agent-go/src/core/auth"
	"tetris-agent-go/src/core/mcp"
	"tetris-agent-go/src/core/tools"
	"tetris-agent-go/src/core/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 认证相关的错误码，仅用于 HTTP 层
const (
	reasonUnauthorized = "unauthorized"
	reasonBadRequest   = "bad_request"
	reasonToolNotFound = "tool_not_found"
)

// TetrisService 俄罗斯方块分析 HTTP 服务
type TetrisService struct {
	logger    *utils.Logger
	config    *configs.Config
	client    *mcp.LocalClient
	authToken *auth.AuthToken // 认证工具，未启用认证时为 nil
	history   HistoryReader
}

var _ Service = (*TetrisService)(nil)

// NewTetrisService 构造函数
func NewTetrisService(config *configs.Config, client *mcp.LocalClient, logger *utils.Logger) (*TetrisService, error) {
	service := &TetrisService{
		logger: logger,
		config: config,
		client: client,
	}

	if config.Server.Auth.Enabled {
		token, err := auth.NewAuthToken(config.Server.Token)
		if err != nil {
			return nil, fmt.Errorf("初始化认证失败: %w", err)
		}
		service.authToken = token
	}
	return service, nil
}

// SetHistory 设置调用记录查询
func (s *TetrisService) SetHistory(history HistoryReader) {
	s.history = history
}

// Start 注册所有路由
func (s *TetrisService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	group := apiGroup.Group("", s.cors)
	// 视觉接口（GET用于状态检查，POST用于图片分析）
	group.GET("/tetris/vision", s.handleVisionStatus)
	group.OPTIONS("/tetris/vision", s.handleOptions)
	group.OPTIONS("/tetris/strategy", s.handleOptions)
	group.GET("/tools", s.handleListTools)

	protected := group.Group("", s.requireAuth)
	protected.POST("/tetris/vision", s.handleVision)
	protected.POST("/tetris/strategy", s.handleStrategy)
	protected.POST("/tools/:name", s.handleCallTool)
	if s.history != nil {
		protected.GET("/history", s.handleHistory)
	}

	s.logger.Info("Tetris HTTP服务路由注册完成", map[string]interface{}{
		"auth":    s.authToken != nil,
		"history": s.history != nil,
	})
	return nil
}

// cors 添加CORS头
func (s *TetrisService) cors(c *gin.Context) {
	c.Header("Access-Control-Allow-Headers", "client-id, content-type, device-id, authorization")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Next()
}

// handleOptions 处理OPTIONS请求（CORS）
func (s *TetrisService) handleOptions(c *gin.Context) {
	c.Status(http.StatusOK)
}

// handleVisionStatus 处理GET请求（状态检查）
func (s *TetrisService) handleVisionStatus(c *gin.Context) {
	var message string
	if s.client.HasTool(tools.VisionToolName) {
		message = fmt.Sprintf("Tetris Vision 接口运行正常，视觉模型: %s", s.config.Tools.Vision.LLM)
	} else {
		message = "Tetris Vision 接口运行不正常，没有可用的视觉分析模型"
	}
	c.String(http.StatusOK, message)
}

// requireAuth 启用认证时校验 Bearer token 与 Device-Id
func (s *TetrisService) requireAuth(c *gin.Context) {
	if s.authToken == nil {
		c.Next()
		return
	}
	result, err := s.verifyAuth(c)
	if err != nil || !result.IsValid {
		s.logger.Warn("认证失败", map[string]interface{}{
			"path":  c.FullPath(),
			"error": fmt.Sprint(err),
		})
		s.respondError(c, http.StatusUnauthorized, reasonUnauthorized, fmt.Sprint(err))
		c.Abort()
		return
	}
	c.Set("device_id", result.DeviceID)
	c.Next()
}

// verifyAuth 验证认证token
func (s *TetrisService) verifyAuth(c *gin.Context) (*AuthVerifyResult, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, fmt.Errorf("无效的认证token或token已过期")
	}

	isValid, deviceID, err := s.authToken.VerifyToken(authHeader[7:])
	if err != nil || !isValid {
		return nil, fmt.Errorf("无效的认证token或token已过期")
	}

	// 检查设备ID匹配
	if requestDeviceID := c.GetHeader("Device-Id"); requestDeviceID != deviceID {
		return nil, fmt.Errorf("设备ID与token不匹配")
	}

	if allowed := s.config.Server.Auth.AllowedDevices; len(allowed) > 0 && !slices.Contains(allowed, deviceID) {
		return nil, fmt.Errorf("设备 %s 不在允许列表中", deviceID)
	}

	return &AuthVerifyResult{IsValid: true, DeviceID: deviceID}, nil
}

// handleVision 处理图片分析，支持 multipart 上传和 JSON
func (s *TetrisService) handleVision(c *gin.Context) {
	var args map[string]interface{}
	var err error
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		args, err = s.parseMultipartRequest(c)
	} else {
		args, err = s.parseVisionJSON(c)
	}
	if err != nil {
		s.logger.Warn("Vision请求解析失败", map[string]interface{}{"error": err.Error()})
		s.respondError(c, http.StatusBadRequest, reasonBadRequest, err.Error())
		return
	}
	s.callTool(c, tools.VisionToolName, args)
}

// parseMultipartRequest 读取 file 字段，多读一个字节让校验器判断是否超限
func (s *TetrisService) parseMultipartRequest(c *gin.Context) (map[string]interface{}, error) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("缺少图片文件: %v", err)
	}
	defer file.Close()

	limit := s.config.Tools.Vision.MaxFileSize
	imageData, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, fmt.Errorf("读取图片数据失败: %v", err)
	}
	if len(imageData) == 0 {
		return nil, fmt.Errorf("图片数据为空")
	}

	s.logger.Debug("收到Vision上传", map[string]interface{}{
		"filename":   header.Filename,
		"image_size": len(imageData),
		"client_id":  c.GetHeader("Client-Id"),
	})

	return map[string]interface{}{
		"image_base64": base64.StdEncoding.EncodeToString(imageData),
		"detail_level": c.Request.FormValue("detail_level"),
	}, nil
}

func (s *TetrisService) parseVisionJSON(c *gin.Context) (map[string]interface{}, error) {
	var req VisionJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, fmt.Errorf("请求体不是合法的JSON: %v", err)
	}
	args := map[string]interface{}{"detail_level": req.DetailLevel}
	switch {
	case req.ImageBase64 != "":
		args["image_base64"] = req.ImageBase64
	case req.ImageURL != "":
		if !isHTTPURL(req.ImageURL) {
			return nil, fmt.Errorf("image_url 必须是 http(s) 地址")
		}
		args["image_input"] = req.ImageURL
	default:
		return nil, fmt.Errorf("image_url 和 image_base64 至少提供一个")
	}
	return args, nil
}

// handleStrategy 处理策略分析
func (s *TetrisService) handleStrategy(c *gin.Context) {
	var args map[string]interface{}
	if err := c.ShouldBindJSON(&args); err != nil {
		s.respondError(c, http.StatusBadRequest, reasonBadRequest, fmt.Sprintf("请求体不是合法的JSON: %v", err))
		return
	}
	s.callTool(c, tools.StrategyToolName, args)
}

// handleListTools 列出可用工具
func (s *TetrisService) handleListTools(c *gin.Context) {
	list := s.client.Tools()
	infos := make([]ToolInfo, 0, len(list))
	for _, tool := range list {
		infos = append(infos, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	c.JSON(http.StatusOK, gin.H{"tools": infos})
}

// handleCallTool 通用工具调用入口，请求体即工具参数
func (s *TetrisService) handleCallTool(c *gin.Context) {
	name := c.Param("name")
	if !s.client.HasTool(name) {
		s.respondError(c, http.StatusNotFound, reasonToolNotFound, fmt.Sprintf("工具 %s 不存在", name))
		return
	}
	args := map[string]interface{}{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			s.respondError(c, http.StatusBadRequest, reasonBadRequest, fmt.Sprintf("请求体不是合法的JSON: %v", err))
			return
		}
	}
	// HTTP 调用方不能读取服务器本地文件
	if input, ok := args["image_input"].(string); ok && input != "" && !isHTTPURL(input) {
		s.respondError(c, http.StatusBadRequest, reasonBadRequest, "image_input 必须是 http(s) 地址")
		return
	}
	s.callTool(c, name, args)
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// handleHistory 查询最近的调用记录
func (s *TetrisService) handleHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	records, err := s.history.Recent(c.Request.Context(), c.Query("tool"), limit)
	if err != nil {
		s.logger.Error("查询调用记录失败", err)
		s.respondError(c, http.StatusInternalServerError, string(tools.ReasonInternal), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *TetrisService) callTool(c *gin.Context, name string, args map[string]interface{}) {
	result, err := s.client.CallTool(c.Request.Context(), name, args)
	if err != nil {
		s.respondError(c, http.StatusNotFound, reasonToolNotFound, err.Error())
		return
	}
	env, ok := result.(tools.Envelope)
	if !ok {
		c.JSON(http.StatusOK, result)
		return
	}
	c.JSON(HTTPStatus(env), env)
}

// HTTPStatus 把工具结果映射为 HTTP 状态码
func HTTPStatus(env tools.Envelope) int {
	if env.IsSuccess() {
		return http.StatusOK
	}
	switch env.Reason() {
	case tools.ReasonModelInvocationFailed:
		return http.StatusBadGateway
	case tools.ReasonInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// respondError 返回错误响应
func (s *TetrisService) respondError(c *gin.Context, statusCode int, reason, message string) {
	c.JSON(statusCode, ErrorResponse{
		Status:  tools.StatusError,
		Reason:  reason,
		Message: message,
	})
}
