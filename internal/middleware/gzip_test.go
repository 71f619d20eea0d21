package middleware

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type payoutEcho struct {
	Creds       int64  `json:"creds"`
	PayPalEmail string `json:"paypal_email"`
}

// payoutEchoHandler имитирует обработчик заявки на вывод: читает JSON из тела
// и возвращает его обратно.
func payoutEchoHandler(w http.ResponseWriter, r *http.Request) {
	var req payoutEcho
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(req)
}

func gzipBody(t *testing.T, data []byte) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatalf("write gzip body: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	return &buf
}

func TestGzipMiddleware_CompressedRequestAndResponse(t *testing.T) {
	payload, _ := json.Marshal(payoutEcho{Creds: 5000, PayPalEmail: "user@example.com"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/payouts", gzipBody(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(payoutEchoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ce := res.Header.Get("Content-Encoding"); ce != "gzip" {
		t.Fatalf("content-encoding = %q, want gzip", ce)
	}

	gr, err := gzip.NewReader(res.Body)
	if err != nil {
		t.Fatalf("new gzip reader: %v", err)
	}
	defer gr.Close()

	var resp payoutEcho
	if err := json.NewDecoder(gr).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Creds != 5000 || resp.PayPalEmail != "user@example.com" {
		t.Fatalf("response = %+v, want original payload", resp)
	}
}

func TestGzipMiddleware_PlainClient(t *testing.T) {
	payload, _ := json.Marshal(payoutEcho{Creds: 7000, PayPalEmail: "plain@example.com"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/payouts", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(payoutEchoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ce := res.Header.Get("Content-Encoding"); ce != "" {
		t.Fatalf("content-encoding = %q, want empty", ce)
	}

	var resp payoutEcho
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Creds != 7000 {
		t.Fatalf("creds = %d, want 7000", resp.Creds)
	}
}

func TestGzipMiddleware_BadCompressedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/user/payouts", bytes.NewReader([]byte("not gzip")))
	req.Header.Set("Content-Encoding", "gzip")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(payoutEchoHandler)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGzipMiddleware_ReadsCompressedRequestWithoutAcceptEncoding(t *testing.T) {
	payload, _ := json.Marshal(payoutEcho{Creds: 5000, PayPalEmail: "user@example.com"})

	req := httptest.NewRequest(http.MethodPost, "/api/user/payouts", gzipBody(t, payload))
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(payoutEchoHandler)).ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var resp payoutEcho
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.PayPalEmail != "user@example.com" {
		t.Fatalf("paypal_email = %q, want user@example.com", resp.PayPalEmail)
	}
}
