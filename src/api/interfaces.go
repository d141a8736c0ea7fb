package api

import (
	"context"

	"tetris-agent-go/src/models"

	"github.com/gin-gonic/gin"
)

// Service 定义 HTTP 服务接口
type Service interface {
	// 将路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}

// HistoryReader 查询调用记录，未配置数据库时为 nil
type HistoryReader interface {
	Recent(ctx context.Context, tool string, limit int) ([]models.AnalysisRecord, error)
}
