// internal/service/payment/domain/state.go
package domain

// State 定义了一次支付尝试的生命周期状态
type State string

const (
	StateIdle      State = "IDLE"      // 初始状态，未发起任何网络调用
	StateCreating  State = "CREATING"  // 正在向网关发起支付请求
	StatePushSent  State = "PUSH_SENT" // 网关已向付款人手机下发确认推送
	StatePolling   State = "POLLING"   // 等待付款人操作，轮询网关状态
	StateCompleted State = "COMPLETED" // 支付成功（网关确认）
	StateFailed    State = "FAILED"    // 支付失败（可能是网关确认，也可能是客户端推断）
	StateCancelled State = "CANCELLED" // 已取消（用户本地取消或网关确认取消）
	StateExpired   State = "EXPIRED"   // 推送超时未确认（网关确认）
)

// Terminal 判断该状态是否为终态。
// 只有 IDLE 和四个终态是调用方可以在静止时观察到的状态，
// CREATING / PUSH_SENT / POLLING 均为在途状态。
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateExpired:
		return true
	}
	return false
}

// InFlight 判断是否为在途状态。
func (s State) InFlight() bool {
	switch s {
	case StateCreating, StatePushSent, StatePolling:
		return true
	}
	return false
}
