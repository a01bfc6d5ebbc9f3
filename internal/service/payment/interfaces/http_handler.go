package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"washa/internal/pkg/logger"
	"washa/internal/service/payment/application"
	"washa/internal/service/payment/domain"
)

const serviceName = "payment-service"

// PaymentHandler 封装了 payment 服务的 HTTP 处理器
type PaymentHandler struct {
	orchestrator *application.Orchestrator
	reconciler   *application.Reconciler
}

// NewPaymentHandler 创建一个新的 HTTP 处理器实例
func NewPaymentHandler(orchestrator *application.Orchestrator, reconciler *application.Reconciler) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator, reconciler: reconciler}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/payments/initiate", h.initiateHandler)
	mux.HandleFunc("/payments/", h.paymentHandler)
}

type initiateRequest struct {
	CorrelationID string               `json:"correlationId,omitempty"`
	UserID        string               `json:"userId"`
	PhoneNumber   string               `json:"phoneNumber"`
	Amount        string               `json:"amount"`
	Draft         orderDraftPayload    `json:"draft"`
}

type orderDraftPayload struct {
	PickupAddress   string             `json:"pickupAddress"`
	DeliveryAddress string             `json:"deliveryAddress"`
	Notes           string             `json:"notes,omitempty"`
	Items           []draftItemPayload `json:"items"`
}

type draftItemPayload struct {
	Garment  string `json:"garment"`
	Service  string `json:"service"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

func (h *PaymentHandler) initiateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "payment-service.InitiateHandler")
	defer span.End()

	var body initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}

	draft := domain.OrderDraft{
		UserID:          body.UserID,
		PickupAddress:   body.Draft.PickupAddress,
		DeliveryAddress: body.Draft.DeliveryAddress,
		Notes:           body.Draft.Notes,
	}
	for _, item := range body.Draft.Items {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			http.Error(w, "invalid item price", http.StatusBadRequest)
			return
		}
		draft.Items = append(draft.Items, domain.DraftItem{
			Garment:  item.Garment,
			Service:  item.Service,
			Quantity: item.Quantity,
			Price:    price,
		})
	}

	span.SetAttributes(
		attribute.String("payment.user_id", body.UserID),
		attribute.String("payment.amount", body.Amount),
	)

	view, err := h.orchestrator.Start(ctx, &application.StartPaymentRequest{
		CorrelationID: body.CorrelationID,
		UserID:        body.UserID,
		PhoneNumber:   body.PhoneNumber,
		Amount:        amount,
		Draft:         draft,
	})
	h.writeAttempt(ctx, w, view, err)
}

// paymentHandler 分发 /payments/{id} 及其子路径上的操作。
func (h *PaymentHandler) paymentHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	rest := strings.TrimPrefix(r.URL.Path, "/payments/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	correlationID := parts[0]
	if correlationID == "" {
		http.Error(w, "missing correlation id", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	tracer := otel.Tracer(serviceName)

	switch {
	case action == "" && r.Method == http.MethodGet:
		ctx, span := tracer.Start(ctx, "payment-service.StatusHandler")
		defer span.End()
		view, err := h.orchestrator.Status(ctx, correlationID)
		h.writeAttempt(ctx, w, view, err)

	case action == "cancel" && r.Method == http.MethodPost:
		ctx, span := tracer.Start(ctx, "payment-service.CancelHandler")
		defer span.End()
		view, err := h.orchestrator.Cancel(ctx, correlationID)
		h.writeAttempt(ctx, w, view, err)

	case action == "retry" && r.Method == http.MethodPost:
		ctx, span := tracer.Start(ctx, "payment-service.RetryHandler")
		defer span.End()
		view, err := h.orchestrator.Retry(ctx, correlationID)
		h.writeAttempt(ctx, w, view, err)

	case action == "reconcile" && r.Method == http.MethodPost:
		ctx, span := tracer.Start(ctx, "payment-service.ReconcileHandler")
		defer span.End()
		result, err := h.reconciler.Resolve(ctx, correlationID, nil)
		if err != nil {
			h.writeError(ctx, w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *PaymentHandler) writeAttempt(ctx context.Context, w http.ResponseWriter, view *application.AttemptView, err error) {
	if err != nil {
		// 模糊失败仍然带回尝试快照，客户端需要 nextAction 决定下一步
		if view != nil && domain.IsKind(err, domain.KindAmbiguous) {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":   err.Error(),
				"kind":    string(domain.KindOf(err)),
				"attempt": view,
			})
			return
		}
		h.writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PaymentHandler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrAttemptNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAttemptInFlight):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrReconcileRequired):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case domain.IsKind(err, domain.KindValidation):
		status = http.StatusBadRequest
	case domain.IsKind(err, domain.KindBusinessRejection):
		status = http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.KindConflict):
		status = http.StatusConflict
	case domain.IsKind(err, domain.KindAmbiguous):
		status = http.StatusBadGateway
	case domain.IsKind(err, domain.KindNetwork):
		status = http.StatusServiceUnavailable
	}
	logger.Ctx(ctx).Warn().Err(err).Int("status", status).Msg("payment request failed")
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(domain.KindOf(err)),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
