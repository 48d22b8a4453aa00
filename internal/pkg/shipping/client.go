package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"shop_backend/internal/pkg/config"
	"shop_backend/pkg/cache"
	"shop_backend/pkg/metrics"
	"shop_backend/pkg/pool"
)

// Gateway 物流平台接口
type Gateway interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error)
	// CancelShipment ids 为平台订单号（无平台订单号时为发货单号）
	CancelShipment(ctx context.Context, ids ...string) error
	AssignAWB(ctx context.Context, shipmentID string) (*AWBAssignment, error)
	GeneratePickup(ctx context.Context, shipmentIDs ...string) error
	GenerateLabel(ctx context.Context, shipmentIDs ...string) (string, error)
	PrintInvoice(ctx context.Context, providerOrderIDs ...string) (string, error)
	GenerateManifest(ctx context.Context, shipmentIDs ...string) (string, error)
	Track(ctx context.Context, awb string) (*Tracking, error)
}

// APIError 平台返回的非 2xx 响应
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("shipping %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Retryable 仅 5xx 与 429 可重试，其余 4xx 为平台拒绝
func (e *APIError) Retryable() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// IsRetryable 判断错误是否为瞬时错误（网络错误、超时、5xx、429）
// 2xx 响应解析失败等错误不可重试，平台可能已经处理了请求
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, pool.ErrCircuitOpen) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type Client struct {
	baseURL        string
	email          string
	password       string
	pickupLocation string
	maxRetries     int
	baseDelay      time.Duration

	http    *http.Client
	tokens  *TokenStore
	breaker *pool.CircuitBreaker
	metrics *metrics.MetricsCollector
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithMetrics(m *metrics.MetricsCollector) Option { return func(c *Client) { c.metrics = m } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.logger = l } }

func WithBaseDelay(d time.Duration) Option { return func(c *Client) { c.baseDelay = d } }

func WithCircuitBreaker(cb *pool.CircuitBreaker) Option { return func(c *Client) { c.breaker = cb } }

func NewClient(cfg config.ShippingConfig, store cache.CacheService, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		email:          cfg.Email,
		password:       cfg.Password,
		pickupLocation: cfg.PickupLocation,
		maxRetries:     cfg.MaxRetries,
		baseDelay:      300 * time.Millisecond,
		http:           &http.Client{Timeout: timeout},
		tokens:         NewTokenStore(store, cfg.TokenTTL),
		breaker:        pool.NewCircuitBreaker(5, 30*time.Second),
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateShipment(ctx context.Context, req ShipmentRequest) (*Shipment, error) {
	var resp struct {
		OrderID    json.Number `json:"order_id"`
		ShipmentID json.Number `json:"shipment_id"`
		Status     string      `json:"status"`
		AWBCode    string      `json:"awb_code"`
	}
	if err := c.call(ctx, "create", http.MethodPost, "/orders/create/adhoc", buildAdhocOrder(req, c.pickupLocation), &resp); err != nil {
		return nil, err
	}
	if resp.ShipmentID == "" {
		return nil, errors.New("shipping create: response has no shipment_id")
	}
	return &Shipment{
		ProviderOrderID: resp.OrderID.String(),
		ShipmentID:      resp.ShipmentID.String(),
		Status:          resp.Status,
		AWBCode:         resp.AWBCode,
	}, nil
}

func (c *Client) CancelShipment(ctx context.Context, ids ...string) error {
	nums, err := toInts("cancel", ids)
	if err != nil {
		return err
	}
	return c.call(ctx, "cancel", http.MethodPost, "/orders/cancel", map[string][]int64{"ids": nums}, nil)
}

func (c *Client) AssignAWB(ctx context.Context, shipmentID string) (*AWBAssignment, error) {
	id, err := strconv.ParseInt(shipmentID, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "parse shipment id %q", shipmentID)
	}
	var resp struct {
		Response struct {
			Data struct {
				AWBCode     string `json:"awb_code"`
				CourierName string `json:"courier_name"`
			} `json:"data"`
		} `json:"response"`
	}
	if err := c.call(ctx, "assign_awb", http.MethodPost, "/courier/assign/awb", map[string]int64{"shipment_id": id}, &resp); err != nil {
		return nil, err
	}
	return &AWBAssignment{AWBCode: resp.Response.Data.AWBCode, CourierName: resp.Response.Data.CourierName}, nil
}

func (c *Client) GeneratePickup(ctx context.Context, shipmentIDs ...string) error {
	nums, err := toInts("pickup", shipmentIDs)
	if err != nil {
		return err
	}
	return c.call(ctx, "pickup", http.MethodPost, "/courier/generate/pickup", map[string][]int64{"shipment_id": nums}, nil)
}

func (c *Client) GenerateLabel(ctx context.Context, shipmentIDs ...string) (string, error) {
	var resp struct {
		LabelURL string `json:"label_url"`
	}
	nums, err := toInts("label", shipmentIDs)
	if err != nil {
		return "", err
	}
	body := map[string][]int64{"shipment_id": nums}
	if err := c.call(ctx, "label", http.MethodPost, "/courier/generate/label", body, &resp); err != nil {
		return "", err
	}
	return resp.LabelURL, nil
}

func (c *Client) PrintInvoice(ctx context.Context, providerOrderIDs ...string) (string, error) {
	var resp struct {
		InvoiceURL string `json:"invoice_url"`
	}
	nums, err := toInts("invoice", providerOrderIDs)
	if err != nil {
		return "", err
	}
	body := map[string][]int64{"ids": nums}
	if err := c.call(ctx, "invoice", http.MethodPost, "/orders/print/invoice", body, &resp); err != nil {
		return "", err
	}
	return resp.InvoiceURL, nil
}

func (c *Client) GenerateManifest(ctx context.Context, shipmentIDs ...string) (string, error) {
	var resp struct {
		ManifestURL string `json:"manifest_url"`
	}
	nums, err := toInts("manifest", shipmentIDs)
	if err != nil {
		return "", err
	}
	body := map[string][]int64{"shipment_id": nums}
	if err := c.call(ctx, "manifest", http.MethodPost, "/manifests/generate", body, &resp); err != nil {
		return "", err
	}
	return resp.ManifestURL, nil
}

func (c *Client) Track(ctx context.Context, awb string) (*Tracking, error) {
	var resp struct {
		TrackingData struct {
			TrackURL      string `json:"track_url"`
			ShipmentTrack []struct {
				CurrentStatus string `json:"current_status"`
				CourierName   string `json:"courier_name"`
			} `json:"shipment_track"`
			Activities []TrackingActivity `json:"shipment_track_activities"`
		} `json:"tracking_data"`
	}
	if err := c.call(ctx, "track", http.MethodGet, "/courier/track/awb/"+url.PathEscape(awb), nil, &resp); err != nil {
		return nil, err
	}

	t := &Tracking{
		AWB:        awb,
		TrackURL:   resp.TrackingData.TrackURL,
		Activities: resp.TrackingData.Activities,
	}
	if len(resp.TrackingData.ShipmentTrack) > 0 {
		t.CurrentStatus = resp.TrackingData.ShipmentTrack[0].CurrentStatus
		t.Courier = resp.TrackingData.ShipmentTrack[0].CourierName
	}
	if t.Activities == nil {
		t.Activities = []TrackingActivity{}
	}
	return t, nil
}

// call 带鉴权、重试与熔断的请求
// 401 时清除 token 重新登录一次；网络错误、5xx、429 按抖动退避重试，其余错误立即返回
func (c *Client) call(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordGatewayCall(op, status, time.Since(start))
	}()

	if err := c.breaker.Allow(); err != nil {
		return errors.Wrapf(err, "shipping %s", op)
	}

	reauthed := false
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		err := c.attempt(ctx, op, method, path, body, out, &reauthed)
		if err != nil && !IsRetryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(max(c.maxRetries, 0)+1)),
		backoff.WithNotify(func(err error, delay time.Duration) {
			c.logger.Warn("shipping call failed, retrying",
				zap.String("op", op),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}

	c.breaker.Record(err, IsRetryable(err))
	return err
}

// attempt 单次请求，token 失效时重新登录后再试一次
func (c *Client) attempt(ctx context.Context, op, method, path string, body, out interface{}, reauthed *bool) error {
	token, err := c.tokens.Get(ctx, c.login)
	if err != nil {
		return err
	}
	err = c.do(ctx, op, method, path, token, body, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || *reauthed {
		return err
	}
	*reauthed = true
	if invErr := c.tokens.Invalidate(ctx); invErr != nil {
		c.logger.Warn("invalidate shipping token failed", zap.Error(invErr))
	}
	if token, err = c.tokens.Get(ctx, c.login); err != nil {
		return err
	}
	return c.do(ctx, op, method, path, token, body, out)
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = 10 * time.Second
	b.Reset()
	return b
}

func (c *Client) login(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	creds := map[string]string{"email": c.email, "password": c.password}
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", "", creds, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.New("shipping login: empty token")
	}
	return resp.Token, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "shipping %s: marshal", op)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "shipping %s: build request", op)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "shipping %s", op)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "shipping %s: read body", op)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(data), 256)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "shipping %s: decode", op)
	}
	return nil
}

// toInts 平台接口只接受数字 ID
func toInts(op string, ids []string) ([]int64, error) {
	if len(ids) == 0 {
		return nil, errors.Errorf("shipping %s: no ids given", op)
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "shipping %s: invalid id %q", op, id)
		}
		out = append(out, n)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
