package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AnalysisRecord 一次工具调用的记录，只写入，工具调用本身从不读取
type AnalysisRecord struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Tool       string         `gorm:"index;size:64;not null" json:"tool"`
	Status     string         `gorm:"size:16" json:"status"` // success | error
	Reason     string         `gorm:"size:64" json:"reason,omitempty"`
	Request    datatypes.JSON `json:"request"`  // 参数，图片数据只保留长度
	Response   datatypes.JSON `json:"response"` // 完整的结果
	DurationMS int64          `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}

// BeforeCreate 自动生成 ID
func (r *AnalysisRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// All 需要自动迁移的模型
func All() []interface{} {
	return []interface{}{&AnalysisRecord{}}
}
