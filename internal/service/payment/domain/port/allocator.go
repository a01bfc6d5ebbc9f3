// internal/service/payment/domain/port/allocator.go
package port

// CorrelationAllocator 负责生成关联ID。
//
// 关联ID在任何网络调用之前生成，同时充当未来订单的主键和网关侧的
// 支付引用，因此要求全局碰撞概率可以忽略。集中在一个端口背后生成，
// 唯一性与生命周期约束只需要在一处执行。
type CorrelationAllocator interface {
	NewCorrelationID() string
}
