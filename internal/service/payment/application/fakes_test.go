package application

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
)

// fakeRepo 是 domain.AttemptRepository 的内存替身。
type fakeRepo struct {
	mu       sync.Mutex
	attempts map[string]domain.PaymentAttempt
	saveErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{attempts: make(map[string]domain.PaymentAttempt)}
}

func (r *fakeRepo) Save(_ context.Context, attempt *domain.PaymentAttempt) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.CorrelationID] = *attempt
	return nil
}

func (r *fakeRepo) FindByCorrelationID(_ context.Context, correlationID string) (*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[correlationID]
	if !ok {
		return nil, domain.ErrAttemptNotFound
	}
	copied := attempt
	return &copied, nil
}

func (r *fakeRepo) ListUnreconciled(_ context.Context, before time.Time) ([]*domain.PaymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.PaymentAttempt
	for _, attempt := range r.attempts {
		if attempt.Reconciled || !attempt.UpdatedAt.Before(before) {
			continue
		}
		if attempt.Ambiguous || attempt.State.InFlight() {
			copied := attempt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeRepo) get(correlationID string) domain.PaymentAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[correlationID]
}

func (r *fakeRepo) put(attempt *domain.PaymentAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.CorrelationID] = *attempt
}

// fakeGateway 是 port.PaymentGateway 的脚本化替身。
type fakeGateway struct {
	mu            sync.Mutex
	initiateCalls int
	statusCalls   int

	initiateFn func(req port.InitiateRequest) (*port.PendingPayment, error)
	statusFn   func(correlationID string) (domain.ProviderStatus, error)
}

func (g *fakeGateway) Initiate(_ context.Context, req port.InitiateRequest) (*port.PendingPayment, error) {
	g.mu.Lock()
	g.initiateCalls++
	g.mu.Unlock()
	if g.initiateFn != nil {
		return g.initiateFn(req)
	}
	return &port.PendingPayment{ProviderRef: "MM-" + req.CorrelationID, Status: domain.ProviderPending}, nil
}

func (g *fakeGateway) Status(_ context.Context, correlationID string) (domain.ProviderStatus, error) {
	g.mu.Lock()
	g.statusCalls++
	g.mu.Unlock()
	if g.statusFn != nil {
		return g.statusFn(correlationID)
	}
	return domain.ProviderCompleted, nil
}

// fakeAllocator 按顺序发放预设的关联ID。
type fakeAllocator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

func (a *fakeAllocator) NewCorrelationID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.idx >= len(a.ids) {
		return "generated-overflow"
	}
	id := a.ids[a.idx]
	a.idx++
	return id
}

// fakeNotifier 记录发布的事件供断言。
type fakeNotifier struct {
	mu            sync.Mutex
	lifecycle     []domain.LifecycleEvent
	reconcileJobs []domain.ReconcileJob
	manualReviews []domain.ManualReviewEvent
}

func (n *fakeNotifier) PublishLifecycle(_ context.Context, event domain.LifecycleEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lifecycle = append(n.lifecycle, event)
	return nil
}

func (n *fakeNotifier) EnqueueReconcile(_ context.Context, job domain.ReconcileJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reconcileJobs = append(n.reconcileJobs, job)
	return nil
}

func (n *fakeNotifier) PublishManualReview(_ context.Context, event domain.ManualReviewEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.manualReviews = append(n.manualReviews, event)
	return nil
}

func (n *fakeNotifier) reconcileJobCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reconcileJobs)
}

// fakeGuard 是 port.InflightGuard 的内存替身。
type fakeGuard struct {
	mu   sync.Mutex
	held map[string]bool
	deny bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: make(map[string]bool)}
}

func (g *fakeGuard) Acquire(_ context.Context, correlationID string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deny || g.held[correlationID] {
		return false, nil
	}
	g.held[correlationID] = true
	return true, nil
}

func (g *fakeGuard) Release(_ context.Context, correlationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, correlationID)
	return nil
}

// fakeMaterializer 是 port.OrderMaterializer 的幂等内存替身。
type fakeMaterializer struct {
	mu     sync.Mutex
	orders map[string]*port.Order
	calls  int
	err    error
}

func newFakeMaterializer() *fakeMaterializer {
	return &fakeMaterializer{orders: make(map[string]*port.Order)}
}

func (m *fakeMaterializer) CreateOrGet(_ context.Context, correlationID string, draft domain.OrderDraft) (*port.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if existing, ok := m.orders[correlationID]; ok {
		return existing, nil
	}
	amount := decimal.Zero
	count := 0
	for _, item := range draft.Items {
		amount = amount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	order := &port.Order{
		ID:        correlationID,
		UserID:    draft.UserID,
		Amount:    amount,
		ItemCount: count,
		CreatedAt: time.Now(),
	}
	m.orders[correlationID] = order
	return order, nil
}

func (m *fakeMaterializer) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}
