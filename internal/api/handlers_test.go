package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ivanod1994/camfinder-server/internal/app"
	"github.com/ivanod1994/camfinder-server/internal/auth"
	"github.com/ivanod1994/camfinder-server/internal/config"
	"github.com/ivanod1994/camfinder-server/internal/store"
)

const testAdminKey = "test-admin-key"

type silentPublisher struct{}

func (silentPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (silentPublisher) Close() {}

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryRepository) {
	t.Helper()

	repo := store.NewMemoryRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := app.NewService(repo, silentPublisher{}, logger, 3)

	gate, err := auth.NewKeyGate(testAdminKey)
	if err != nil {
		t.Fatalf("NewKeyGate returned error: %v", err)
	}

	handlers := NewHandlers(service, map[string]config.Plan{
		"1 month": {Months: 1, Price: "5 USDT"},
	}, map[string]string{"usdt-trc20": "TTestWallet"}, logger)

	server := httptest.NewServer(NewRouter(handlers, gate))
	t.Cleanup(server.Close)
	return server, repo
}

func doJSON(t *testing.T, method, url string, payload interface{}, adminKey string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+adminKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func submitViaAPI(t *testing.T, server *httptest.Server, deviceID, tx string) string {
	t.Helper()

	resp := doJSON(t, http.MethodPost, server.URL+"/api/payments/submit", map[string]string{
		"device_id": deviceID,
		"tx":        tx,
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 from submit, got %d", resp.StatusCode)
	}
	var body struct {
		PaymentID string `json:"payment_id"`
	}
	decodeBody(t, resp, &body)
	return body.PaymentID
}

func TestAdminEndpointsRequireCredential(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/admin/payments/pending", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 without a credential, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/admin/payments/pending", nil, "wrong-key")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 with a wrong credential, got %d", resp.StatusCode)
	}
}

func TestAdminCredentialViaQueryParam(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/admin/payments/pending?key="+testAdminKey, nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with the key query param, got %d", resp.StatusCode)
	}
}

func TestDeviceStatusForFreshDevice(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/devices/status?device_id=d1", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status struct {
		Subscribed  bool    `json:"subscribed"`
		ActiveUntil *string `json:"active_until"`
		FreeLeft    int     `json:"free_left"`
	}
	decodeBody(t, resp, &status)
	if status.Subscribed {
		t.Fatal("expected subscribed=false for a fresh device")
	}
	if status.ActiveUntil != nil {
		t.Fatalf("expected null active_until, got %q", *status.ActiveUntil)
	}
	if status.FreeLeft != 3 {
		t.Fatalf("expected free quota 3, got %d", status.FreeLeft)
	}
}

func TestDeviceStatusRequiresDeviceID(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/devices/status", nil, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without device_id, got %d", resp.StatusCode)
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/payments/submit", map[string]string{
		"device_id": "d1",
	}, "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing tx, got %d", resp.StatusCode)
	}
}

func TestPaymentReviewFlow(t *testing.T) {
	server, _ := newTestServer(t)

	paymentID := submitViaAPI(t, server, "d1", "ABC123")

	resp := doJSON(t, http.MethodGet, server.URL+"/admin/payments/pending", nil, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from pending list, got %d", resp.StatusCode)
	}
	var pending []struct {
		PaymentID string `json:"payment_id"`
		DeviceID  string `json:"device_id"`
	}
	decodeBody(t, resp, &pending)
	if len(pending) != 1 || pending[0].PaymentID != paymentID {
		t.Fatalf("expected the submission in the pending list, got %+v", pending)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/admin/payments/activate", map[string]interface{}{
		"payment_id": paymentID,
		"device_id":  "d1",
		"months":     1,
	}, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from activate, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/devices/status?device_id=d1", nil, "")
	var status struct {
		Subscribed bool `json:"subscribed"`
	}
	decodeBody(t, resp, &status)
	if !status.Subscribed {
		t.Fatal("expected subscribed=true after activation")
	}

	// A second activation of the same payment is a conflict.
	resp = doJSON(t, http.MethodPost, server.URL+"/admin/payments/activate", map[string]interface{}{
		"payment_id": paymentID,
		"device_id":  "d1",
	}, testAdminKey)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for an already approved payment, got %d", resp.StatusCode)
	}
}

func TestActivateErrorStatuses(t *testing.T) {
	server, _ := newTestServer(t)

	paymentID := submitViaAPI(t, server, "d1", "ABC123")

	tests := []struct {
		name    string
		payload map[string]interface{}
		want    int
	}{
		{
			name:    "unknown payment id",
			payload: map[string]interface{}{"payment_id": "5bdc2902-54a1-4be4-a024-24e74ba4a7e1", "device_id": "d1"},
			want:    http.StatusNotFound,
		},
		{
			name:    "malformed payment id",
			payload: map[string]interface{}{"payment_id": "not-a-uuid", "device_id": "d1"},
			want:    http.StatusBadRequest,
		},
		{
			name:    "device mismatch",
			payload: map[string]interface{}{"payment_id": paymentID, "device_id": "other-device"},
			want:    http.StatusUnprocessableEntity,
		},
		{
			name:    "missing device id",
			payload: map[string]interface{}{"payment_id": paymentID},
			want:    http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, server.URL+"/admin/payments/activate", tt.payload, testAdminKey)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestRejectFlow(t *testing.T) {
	server, repo := newTestServer(t)

	paymentID := submitViaAPI(t, server, "d1", "ABC123")

	resp := doJSON(t, http.MethodPost, server.URL+"/admin/payments/reject", map[string]string{
		"payment_id": paymentID,
	}, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from reject, got %d", resp.StatusCode)
	}

	// Activating a rejected payment conflicts.
	resp = doJSON(t, http.MethodPost, server.URL+"/admin/payments/activate", map[string]interface{}{
		"payment_id": paymentID,
		"device_id":  "d1",
	}, testAdminKey)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 activating a rejected payment, got %d", resp.StatusCode)
	}

	// Neither the rejection nor the failed activation may touch the ledger;
	// no record should have been created for the device.
	if _, err := repo.GetRecord(context.Background(), "d1"); !errors.Is(err, store.ErrDeviceNotFound) {
		t.Fatalf("expected no ledger record after reject, got err=%v", err)
	}
}

func TestRevokeAndDeviceManagement(t *testing.T) {
	server, _ := newTestServer(t)

	// Manual activation without a payment.
	resp := doJSON(t, http.MethodPost, server.URL+"/admin/payments/activate", map[string]interface{}{
		"device_id": "d1",
		"dev":       true,
	}, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from dev activation, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, server.URL+"/admin/subscriptions/revoke", map[string]string{
		"device_id": "d1",
	}, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from revoke, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/api/devices/status?device_id=d1", nil, "")
	var status struct {
		Subscribed bool `json:"subscribed"`
	}
	decodeBody(t, resp, &status)
	if status.Subscribed {
		t.Fatal("expected subscribed=false after revoke")
	}

	resp = doJSON(t, http.MethodGet, server.URL+"/admin/devices", nil, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from device list, got %d", resp.StatusCode)
	}
	var devices []struct {
		DeviceID string `json:"device_id"`
	}
	decodeBody(t, resp, &devices)
	if len(devices) != 1 || devices[0].DeviceID != "d1" {
		t.Fatalf("expected the device in the admin list, got %+v", devices)
	}

	resp = doJSON(t, http.MethodDelete, server.URL+"/admin/devices/d1", nil, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from delete, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, server.URL+"/admin/devices/d1", nil, testAdminKey)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 deleting a missing device, got %d", resp.StatusCode)
	}
}

func TestRegisterAndFreeConsumption(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/devices/register", map[string]string{
		"device_id": "d1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from register, got %d", resp.StatusCode)
	}

	var freeBody struct {
		FreeLeft int `json:"free_left"`
	}

	// Default consumption is one attempt.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/devices/free", map[string]interface{}{
		"device_id": "d1",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from free, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &freeBody)
	if freeBody.FreeLeft != 2 {
		t.Fatalf("expected 2 attempts left, got %d", freeBody.FreeLeft)
	}

	// Consumption floors at zero.
	resp = doJSON(t, http.MethodPost, server.URL+"/api/devices/free", map[string]interface{}{
		"device_id": "d1",
		"consumed":  10,
	}, "")
	decodeBody(t, resp, &freeBody)
	if freeBody.FreeLeft != 0 {
		t.Fatalf("expected 0 attempts left, got %d", freeBody.FreeLeft)
	}

	// An admin grant brings the device back.
	resp = doJSON(t, http.MethodPost, server.URL+"/admin/devices/free", map[string]interface{}{
		"device_id": "d1",
		"count":     5,
	}, testAdminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from admin grant, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &freeBody)
	if freeBody.FreeLeft != 5 {
		t.Fatalf("expected 5 attempts after grant, got %d", freeBody.FreeLeft)
	}
}

func TestConfigEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodGet, server.URL+"/api/config", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from config, got %d", resp.StatusCode)
	}

	var body struct {
		OK      bool                   `json:"ok"`
		Plans   map[string]config.Plan `json:"plans"`
		Wallets map[string]string      `json:"wallets"`
	}
	decodeBody(t, resp, &body)
	if !body.OK {
		t.Fatal("expected ok=true")
	}
	if body.Plans["1 month"].Months != 1 {
		t.Fatalf("expected the configured plan table, got %+v", body.Plans)
	}
	if body.Wallets["usdt-trc20"] != "TTestWallet" {
		t.Fatalf("expected the configured wallets, got %+v", body.Wallets)
	}
}
