// internal/service/payment/domain/status.go
package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// ProviderStatus 是支付网关上报的交易状态。
// 这是唯一的事实来源，本地状态机的其它转换都是临时性的。
type ProviderStatus string

const (
	ProviderPending   ProviderStatus = "pending"
	ProviderCompleted ProviderStatus = "completed"
	ProviderFailed    ProviderStatus = "failed"
	ProviderCancelled ProviderStatus = "cancelled"
	ProviderExpired   ProviderStatus = "expired"
)

// Terminal 判断网关状态是否为终态。
func (s ProviderStatus) Terminal() bool {
	return s != ProviderPending
}

// ParseProviderStatus 把网关返回的状态字符串归一化为内部枚举。
// 服务商的大小写和拼写变体在这里统一收口。
func ParseProviderStatus(raw string) (ProviderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "processing", "accepted":
		return ProviderPending, nil
	case "completed", "success", "successful", "succeeded":
		return ProviderCompleted, nil
	case "failed", "failure":
		return ProviderFailed, nil
	case "cancelled", "canceled":
		return ProviderCancelled, nil
	case "expired", "timeout":
		return ProviderExpired, nil
	}
	return "", errors.Errorf("unknown provider status %q", raw)
}

// ToState 把网关终态映射到本地状态机终态。
func (s ProviderStatus) ToState() State {
	switch s {
	case ProviderCompleted:
		return StateCompleted
	case ProviderCancelled:
		return StateCancelled
	case ProviderExpired:
		return StateExpired
	default:
		return StateFailed
	}
}
