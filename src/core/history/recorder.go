// Package history 把工具调用记录写入数据库，供事后排查模型回复。
package history

import (
	"context"
	"encoding/json"
	"fmt"

	"tetris-agent-go/src/core/mcp"
	"tetris-agent-go/src/core/tools"
	"tetris-agent-go/src/core/utils"
	"tetris-agent-go/src/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 参数中只记录长度的字段
var redactedArgs = map[string]bool{
	"image_base64": true,
}

// Recorder 基于 gorm 的调用记录器
type Recorder struct {
	db     *gorm.DB
	logger *utils.Logger
}

var _ mcp.Recorder = (*Recorder)(nil)

// NewRecorder 创建调用记录器
func NewRecorder(db *gorm.DB, logger *utils.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record 写入一条调用记录
func (r *Recorder) Record(ctx context.Context, call mcp.CallRecord) error {
	record, err := buildRecord(call)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("写入调用记录失败: %w", err)
	}
	r.logger.Debug("调用记录已保存", map[string]interface{}{
		"id":     record.ID,
		"tool":   record.Tool,
		"status": record.Status,
	})
	return nil
}

// Recent 按时间倒序返回最近的记录，tool 为空时不过滤
func (r *Recorder) Recent(ctx context.Context, tool string, limit int) ([]models.AnalysisRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if tool != "" {
		query = query.Where("tool = ?", tool)
	}
	var records []models.AnalysisRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询调用记录失败: %w", err)
	}
	return records, nil
}

func buildRecord(call mcp.CallRecord) (*models.AnalysisRecord, error) {
	record := &models.AnalysisRecord{
		Tool:       call.Tool,
		DurationMS: call.Duration.Milliseconds(),
	}

	request, err := json.Marshal(redact(call.Args))
	if err != nil {
		return nil, fmt.Errorf("序列化调用参数失败: %w", err)
	}
	record.Request = datatypes.JSON(request)

	response := call.Result
	if call.Err != nil {
		response = map[string]interface{}{"status": tools.StatusError, "message": call.Err.Error()}
	}
	data, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("序列化调用结果失败: %w", err)
	}
	record.Response = datatypes.JSON(data)

	switch {
	case call.Err != nil:
		record.Status = tools.StatusError
	default:
		if env, ok := call.Result.(tools.Envelope); ok {
			record.Status = env.Status()
			record.Reason = string(env.Reason())
		}
	}
	return record, nil
}

func redact(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok && redactedArgs[k] {
			out[k] = fmt.Sprintf("<%d chars>", len(s))
			continue
		}
		out[k] = v
	}
	return out
}
