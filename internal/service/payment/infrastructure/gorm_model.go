// internal/service/payment/infrastructure/gorm_model.go
package infrastructure

import "time"

// AttemptModel 是支付尝试在数据库中的形态。
// 领域模型与数据库模型分离，转换逻辑见 mapper.go。
type AttemptModel struct {
	CorrelationID string    `gorm:"column:correlation_id;primaryKey;size:64"`
	UserID        string    `gorm:"column:user_id;size:64;index"`
	Msisdn        string    `gorm:"column:msisdn;size:20"`
	Amount        string    `gorm:"column:amount;type:decimal(14,2)"`
	State         string    `gorm:"column:state;size:20;index"`
	Ambiguous     bool      `gorm:"column:ambiguous"`
	Reconciled    bool      `gorm:"column:reconciled"`
	ProviderRef   string    `gorm:"column:provider_ref;size:128"`
	FailureReason string    `gorm:"column:failure_reason;size:512"`
	DraftJSON     []byte    `gorm:"column:draft_json;type:json"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;index"`
}

func (AttemptModel) TableName() string {
	return "payment_attempts"
}
