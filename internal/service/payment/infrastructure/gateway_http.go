// internal/service/payment/infrastructure/gateway_http.go
package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"washa/internal/pkg/httpclient"
	"washa/internal/service/payment/domain"
	"washa/internal/service/payment/domain/port"
)

// GatewayHTTPAdapter 是 port.PaymentGateway 接口的HTTP实现。
//
// 服务商的接口以我们的关联ID为键：
//
//	POST {base}/payments/{correlationId}   body {"phoneNumber": "+256..."}
//	GET  {base}/payments/{correlationId}
//
// 适配器自身绝不重试。错误按领域分类上抛，由编排器决定处置。
type GatewayHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

// NewGatewayHTTPAdapter 创建一个新的支付网关适配器。
func NewGatewayHTTPAdapter(client *httpclient.Client, baseURL string) *GatewayHTTPAdapter {
	return &GatewayHTTPAdapter{client: client, baseURL: baseURL}
}

type initiateBody struct {
	PhoneNumber string `json:"phoneNumber"`
}

type initiateResponse struct {
	TransactionRef string `json:"transactionRef"`
	Status         string `json:"status"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Initiate 发起一次推送支付。
// 传输层错误归为 ambiguous：请求可能已经到达服务商，结局未知，
// 调用方必须走对账而不是重发扣款。
func (g *GatewayHTTPAdapter) Initiate(ctx context.Context, req port.InitiateRequest) (*port.PendingPayment, error) {
	started := time.Now()
	url := fmt.Sprintf("%s/payments/%s", g.baseURL, req.CorrelationID)

	resp, err := g.client.PostJSON(ctx, url, initiateBody{PhoneNumber: req.Msisdn.String()})
	GatewayLatencySeconds.WithLabelValues("initiate").Observe(time.Since(started).Seconds())
	if err != nil {
		GatewayRequestsTotal.WithLabelValues("initiate", "transport_error").Inc()
		return nil, domain.WrapE(domain.KindAmbiguous, err, "initiate request did not complete")
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		var body initiateResponse
		if err := resp.DecodeJSON(&body); err != nil {
			GatewayRequestsTotal.WithLabelValues("initiate", "bad_response").Inc()
			return nil, domain.WrapE(domain.KindAmbiguous, err, "initiate accepted but response unreadable")
		}
		status, err := domain.ParseProviderStatus(body.Status)
		if err != nil {
			GatewayRequestsTotal.WithLabelValues("initiate", "bad_response").Inc()
			return nil, domain.WrapE(domain.KindAmbiguous, err, "initiate accepted but status unreadable")
		}
		GatewayRequestsTotal.WithLabelValues("initiate", "ok").Inc()
		return &port.PendingPayment{ProviderRef: body.TransactionRef, Status: status}, nil

	case resp.StatusCode == http.StatusBadRequest:
		GatewayRequestsTotal.WithLabelValues("initiate", "rejected").Inc()
		return nil, domain.E(domain.KindValidation, "provider rejected request: %s", g.errorMessage(resp))

	case resp.StatusCode == http.StatusPaymentRequired,
		resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusUnprocessableEntity:
		// 余额不足、重复引用、不支持的运营商等业务性拒绝：终态，换新ID才能重试
		GatewayRequestsTotal.WithLabelValues("initiate", "rejected").Inc()
		return nil, domain.E(domain.KindBusinessRejection, "provider rejected payment: %s", g.errorMessage(resp))

	default:
		GatewayRequestsTotal.WithLabelValues("initiate", "ambiguous").Inc()
		return nil, domain.E(domain.KindAmbiguous, "provider returned %d, outcome unknown", resp.StatusCode)
	}
}

// Status 查询一次支付的权威状态。幂等、无副作用，可任意多次调用。
// 传输层错误归为 network：只影响这次查询，不影响扣款本身。
func (g *GatewayHTTPAdapter) Status(ctx context.Context, correlationID string) (domain.ProviderStatus, error) {
	started := time.Now()
	url := fmt.Sprintf("%s/payments/%s", g.baseURL, correlationID)

	resp, err := g.client.GetJSON(ctx, url)
	GatewayLatencySeconds.WithLabelValues("status").Observe(time.Since(started).Seconds())
	if err != nil {
		GatewayRequestsTotal.WithLabelValues("status", "transport_error").Inc()
		return "", domain.WrapE(domain.KindNetwork, err, "status query did not complete")
	}

	switch {
	case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
		var body statusResponse
		if err := resp.DecodeJSON(&body); err != nil {
			GatewayRequestsTotal.WithLabelValues("status", "bad_response").Inc()
			return "", domain.WrapE(domain.KindNetwork, err, "status response unreadable")
		}
		status, err := domain.ParseProviderStatus(body.Status)
		if err != nil {
			GatewayRequestsTotal.WithLabelValues("status", "bad_response").Inc()
			return "", domain.WrapE(domain.KindNetwork, err, "status response unreadable")
		}
		GatewayRequestsTotal.WithLabelValues("status", "ok").Inc()
		return status, nil

	case resp.StatusCode == http.StatusNotFound:
		// 服务商不认识这个关联ID：说明扣款从未被记录，作为确定的失败处理
		GatewayRequestsTotal.WithLabelValues("status", "not_found").Inc()
		return domain.ProviderFailed, nil

	default:
		GatewayRequestsTotal.WithLabelValues("status", "error").Inc()
		return "", domain.E(domain.KindNetwork, "provider returned %d for status query", resp.StatusCode)
	}
}

func (g *GatewayHTTPAdapter) errorMessage(resp *httpclient.Response) string {
	var body gatewayError
	if err := resp.DecodeJSON(&body); err != nil || body.Message == "" {
		return errors.Errorf("status %d", resp.StatusCode).Error()
	}
	if body.Code != "" {
		return fmt.Sprintf("%s (%s)", body.Message, body.Code)
	}
	return body.Message
}
