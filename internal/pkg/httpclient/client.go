// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Client 是一个可追踪的、可注入的HTTP客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client // 持有一个可复用的HTTP客户端实例
}

// Response 承载一次调用的状态码和原始响应体，
// 由调用方决定非 2xx 状态码的业务含义（网关适配器需要区分 4xx 的种类）。
type Response struct {
	StatusCode int
	Body       []byte
}

// NewClient 创建一个新的客户端实例
func NewClient(tracer trace.Tracer) *Client {
	// 在这里创建 http.Client，并且不设置 Timeout 字段
	// 让其完全受控于每次请求传入的 context
	httpClient := &http.Client{
		// 我们可以配置 Transport 来自定义连接池等行为
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
		},
	}
	return &Client{
		Tracer:     tracer,
		HTTPClient: httpClient,
	}
}

// PostJSON 发送一个 JSON 请求体并返回原始响应。
func (c *Client) PostJSON(ctx context.Context, targetURL string, body interface{}) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, targetURL, payload)
}

// GetJSON 发送一个 GET 请求并返回原始响应。
func (c *Client) GetJSON(ctx context.Context, targetURL string) (*Response, error) {
	return c.do(ctx, http.MethodGet, targetURL, nil)
}

// DecodeJSON 把响应体解码到目标结构。
func (r *Response) DecodeJSON(out interface{}) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("empty response body")
	}
	return json.Unmarshal(r.Body, out)
}

func (c *Client) do(ctx context.Context, method, targetURL string, payload []byte) (*Response, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}
	// 从 URL 中解析出服务名用于 Span
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])

	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, reqBody)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	span.SetAttributes(
		attribute.String("http.url", targetURL),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}

	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}
