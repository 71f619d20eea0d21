package paypal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetAccessToken_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/oauth2/token" {
			t.Fatalf("path = %s, want /v1/oauth2/token", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			t.Fatalf("Authorization = %q, want Basic auth", r.Header.Get("Authorization"))
		}

		body, _ := io.ReadAll(r.Body)
		if string(body) != "grant_type=client_credentials" {
			t.Fatalf("body = %q, want grant_type=client_credentials", body)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "test-token",
			TokenType:   "Bearer",
			ExpiresIn:   3600,
		})
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "client-id", "client-secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	token, err := client.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("GetAccessToken error: %v", err)
	}
	if token != "test-token" {
		t.Fatalf("token = %q, want test-token", token)
	}
}

func TestGetAccessToken_BadCredentials(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"Client Authentication failed"}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "bad-id", "bad-secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.GetAccessToken(ctx)
	if err == nil {
		t.Fatalf("expected error for bad credentials")
	}
	if !strings.Contains(err.Error(), "Client Authentication failed") {
		t.Fatalf("error = %v, want PayPal description", err)
	}
}

func TestSendPayout_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/payouts" {
			t.Fatalf("path = %s, want /v1/payments/payouts", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Fatalf("Authorization = %q, want Bearer test-token", got)
		}

		var req payoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.HasPrefix(req.SenderBatchHeader.SenderBatchID, "credpulse_payout_") {
			t.Fatalf("sender_batch_id = %q, want credpulse_payout_ prefix", req.SenderBatchHeader.SenderBatchID)
		}
		if len(req.Items) != 1 {
			t.Fatalf("items = %d, want 1", len(req.Items))
		}
		if req.Items[0].Receiver != "user@example.com" {
			t.Fatalf("receiver = %q, want user@example.com", req.Items[0].Receiver)
		}
		if req.Items[0].Amount.Value != "5.00" || req.Items[0].Amount.Currency != "USD" {
			t.Fatalf("amount = %+v, want 5.00 USD", req.Items[0].Amount)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{"payout_batch_id":"BATCH123"}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "client-id", "client-secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	batchID, err := client.SendPayout(ctx, "test-token", "user@example.com", 500)
	if err != nil {
		t.Fatalf("SendPayout error: %v", err)
	}
	if batchID != "BATCH123" {
		t.Fatalf("batchID = %q, want BATCH123", batchID)
	}
}

func TestSendPayout_StructuredError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"Validation error","details":[{"issue":"RECEIVER_UNREGISTERED"}]}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "client-id", "client-secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.SendPayout(ctx, "test-token", "missing@example.com", 500)
	if err == nil {
		t.Fatalf("expected error for rejected payout")
	}
	if !strings.Contains(err.Error(), "RECEIVER_UNREGISTERED") {
		t.Fatalf("error = %v, want issue code from details", err)
	}
}

func TestSendPayout_EmptyBatchID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"batch_header":{}}`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "client-id", "client-secret")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.SendPayout(ctx, "test-token", "user@example.com", 500)
	if err == nil {
		t.Fatalf("expected error for missing payout_batch_id")
	}
}
