// internal/service/payment/infrastructure/mapper.go
package infrastructure

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"washa/internal/service/payment/domain"
)

// ToAttemptModel 把领域聚合转换为数据库模型。
func ToAttemptModel(a *domain.PaymentAttempt) (*AttemptModel, error) {
	draftJSON, err := json.Marshal(a.Draft)
	if err != nil {
		return nil, err
	}
	return &AttemptModel{
		CorrelationID: a.CorrelationID,
		UserID:        a.UserID,
		Msisdn:        a.Msisdn.String(),
		Amount:        a.Amount.String(),
		State:         string(a.State),
		Ambiguous:     a.Ambiguous,
		Reconciled:    a.Reconciled,
		ProviderRef:   a.ProviderRef,
		FailureReason: a.FailureReason,
		DraftJSON:     draftJSON,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}, nil
}

// ToDomainAttempt 把数据库模型还原为领域聚合。
func ToDomainAttempt(m *AttemptModel) (*domain.PaymentAttempt, error) {
	amount, err := decimal.NewFromString(m.Amount)
	if err != nil {
		return nil, err
	}
	var draft domain.OrderDraft
	if len(m.DraftJSON) > 0 {
		if err := json.Unmarshal(m.DraftJSON, &draft); err != nil {
			return nil, err
		}
	}
	return &domain.PaymentAttempt{
		CorrelationID: m.CorrelationID,
		UserID:        m.UserID,
		Msisdn:        domain.MSISDN(m.Msisdn),
		Amount:        amount,
		Draft:         draft,
		State:         domain.State(m.State),
		Ambiguous:     m.Ambiguous,
		Reconciled:    m.Reconciled,
		ProviderRef:   m.ProviderRef,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}, nil
}
