/**
 * @description
 * HTTP client for the camfinder server API. It covers both the device-facing
 * endpoints (register, status, free attempts, payment submission, config)
 * and, when constructed with an admin credential, the admin endpoints
 * (pending list, activate, reject, revoke, device management).
 */
package subscriptionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ivanod1994/camfinder-server/internal/config"
	"github.com/ivanod1994/camfinder-server/internal/domain"
)

// Client is a client for the camfinder server.
type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
}

// NewClient creates a new camfinder server client. adminKey may be empty for
// device-only use.
func NewClient(baseURL, adminKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		adminKey:   adminKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// RegisterResponse is returned by RegisterDevice.
type RegisterResponse struct {
	OK     bool                       `json:"ok"`
	Device *domain.SubscriptionRecord `json:"device"`
}

// SubmitResponse is returned by SubmitPayment.
type SubmitResponse struct {
	OK        bool   `json:"ok"`
	PaymentID string `json:"payment_id"`
}

// FreeResponse is returned by the free attempt endpoints.
type FreeResponse struct {
	OK       bool `json:"ok"`
	FreeLeft int  `json:"free_left"`
}

// ConfigResponse is returned by GetConfig.
type ConfigResponse struct {
	OK      bool                   `json:"ok"`
	Plans   map[string]config.Plan `json:"plans"`
	Wallets map[string]string      `json:"wallets"`
}

// SubmitPaymentRequest carries an optional-field payment submission.
type SubmitPaymentRequest struct {
	DeviceID string  `json:"device_id"`
	Tx       string  `json:"tx"`
	Plan     *string `json:"plan,omitempty"`
	Comment  *string `json:"comment,omitempty"`
	Amount   *int64  `json:"amount,omitempty"`
	Currency *string `json:"currency,omitempty"`
}

// ActivateParams describes an admin activation call.
type ActivateParams struct {
	PaymentID *string `json:"payment_id,omitempty"`
	DeviceID  string  `json:"device_id"`
	Months    int     `json:"months,omitempty"`
	Dev       bool    `json:"dev,omitempty"`
}

// RegisterDevice registers a device on the server.
func (c *Client) RegisterDevice(ctx context.Context, deviceID string) (*RegisterResponse, error) {
	var out RegisterResponse
	err := c.post(ctx, "/api/devices/register", map[string]string{"device_id": deviceID}, &out, false)
	return &out, err
}

// DeviceStatus fetches the current subscription status of a device.
func (c *Client) DeviceStatus(ctx context.Context, deviceID string) (*domain.DeviceStatus, error) {
	var out domain.DeviceStatus
	err := c.get(ctx, "/api/devices/status?device_id="+url.QueryEscape(deviceID), &out, false)
	return &out, err
}

// ConsumeFree deducts free attempts from a device.
func (c *Client) ConsumeFree(ctx context.Context, deviceID string, consumed int) (*FreeResponse, error) {
	var out FreeResponse
	err := c.post(ctx, "/api/devices/free", map[string]interface{}{
		"device_id": deviceID,
		"consumed":  consumed,
	}, &out, false)
	return &out, err
}

// SubmitPayment files a payment submission for admin review.
func (c *Client) SubmitPayment(ctx context.Context, req SubmitPaymentRequest) (*SubmitResponse, error) {
	var out SubmitResponse
	err := c.post(ctx, "/api/payments/submit", req, &out, false)
	return &out, err
}

// GetConfig fetches the configured plans and payment wallets.
func (c *Client) GetConfig(ctx context.Context) (*ConfigResponse, error) {
	var out ConfigResponse
	err := c.get(ctx, "/api/config", &out, false)
	return &out, err
}

// PendingPayments lists pending submissions. Admin-only.
func (c *Client) PendingPayments(ctx context.Context) ([]domain.PaymentSubmission, error) {
	var out []domain.PaymentSubmission
	err := c.get(ctx, "/admin/payments/pending", &out, true)
	return out, err
}

// Activate approves a submission or grants a manual activation. Admin-only.
func (c *Client) Activate(ctx context.Context, params ActivateParams) (*domain.ActivationResult, error) {
	var out domain.ActivationResult
	err := c.post(ctx, "/admin/payments/activate", params, &out, true)
	return &out, err
}

// Reject rejects a pending submission. Admin-only.
func (c *Client) Reject(ctx context.Context, paymentID string) error {
	return c.post(ctx, "/admin/payments/reject", map[string]string{"payment_id": paymentID}, nil, true)
}

// Revoke clears a device's subscription. Admin-only.
func (c *Client) Revoke(ctx context.Context, deviceID string) error {
	return c.post(ctx, "/admin/subscriptions/revoke", map[string]string{"device_id": deviceID}, nil, true)
}

// Devices lists all device records, most recently seen first. Admin-only.
func (c *Client) Devices(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	var out []domain.SubscriptionRecord
	err := c.get(ctx, "/admin/devices", &out, true)
	return out, err
}

// DeleteDevice removes a device record. Admin-only.
func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/admin/devices/"+url.PathEscape(deviceID), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil, true)
}

// SetFree overwrites a device's free attempt counter. Admin-only.
func (c *Client) SetFree(ctx context.Context, deviceID string, count int) (*FreeResponse, error) {
	var out FreeResponse
	err := c.post(ctx, "/admin/devices/free", map[string]interface{}{
		"device_id": deviceID,
		"count":     count,
	}, &out, true)
	return &out, err
}

func (c *Client) get(ctx context.Context, path string, out interface{}, admin bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out, admin)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}, admin bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out, admin)
}

func (c *Client) do(req *http.Request, out interface{}, admin bool) error {
	if admin {
		if c.adminKey == "" {
			return fmt.Errorf("admin credential is not configured")
		}
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to camfinder server failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
