// internal/service/payment/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"washa/internal/service/payment/domain"
)

// GormAttemptRepository 是 domain.AttemptRepository 的 GORM 实现。
type GormAttemptRepository struct {
	db *gorm.DB
}

// NewGormAttemptRepository 创建仓储实例并执行表结构迁移。
func NewGormAttemptRepository(db *gorm.DB) (*GormAttemptRepository, error) {
	if err := db.AutoMigrate(&AttemptModel{}); err != nil {
		return nil, err
	}
	return &GormAttemptRepository{db: db}, nil
}

// Save 以关联ID为键做插入或整行更新。
func (r *GormAttemptRepository) Save(ctx context.Context, attempt *domain.PaymentAttempt) error {
	model, err := ToAttemptModel(attempt)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// FindByCorrelationID 按关联ID查找尝试。
func (r *GormAttemptRepository) FindByCorrelationID(ctx context.Context, correlationID string) (*domain.PaymentAttempt, error) {
	var model AttemptModel
	err := r.db.WithContext(ctx).Where("correlation_id = ?", correlationID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, err
	}
	return ToDomainAttempt(&model)
}

// ListUnreconciled 列出需要崩溃恢复扫描处理的尝试：
// 模糊终态未对账的，以及长期停留在在途状态（进程被杀）的。
func (r *GormAttemptRepository) ListUnreconciled(ctx context.Context, before time.Time) ([]*domain.PaymentAttempt, error) {
	var models []AttemptModel
	inFlight := []string{
		string(domain.StateCreating),
		string(domain.StatePushSent),
		string(domain.StatePolling),
	}
	err := r.db.WithContext(ctx).
		Where("reconciled = ? AND updated_at < ?", false, before).
		Where("ambiguous = ? OR state IN ?", true, inFlight).
		Order("updated_at ASC").
		Limit(500).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]*domain.PaymentAttempt, 0, len(models))
	for i := range models {
		attempt, err := ToDomainAttempt(&models[i])
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}
