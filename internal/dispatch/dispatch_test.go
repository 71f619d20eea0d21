package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/credpulse-system/internal/model"
	"github.com/mmeshcher/credpulse-system/internal/repository"
)

type stubStore struct {
	approved []model.PayoutRequest
	listErr  error

	claimErrs map[int64]error

	completed map[int64]string
	failed    map[int64]string
}

func newStubStore(approved ...model.PayoutRequest) *stubStore {
	return &stubStore{
		approved:  approved,
		claimErrs: map[int64]error{},
		completed: map[int64]string{},
		failed:    map[int64]string{},
	}
}

func (s *stubStore) ListPayoutsByStatus(ctx context.Context, status model.PayoutStatus, limit int) ([]model.PayoutRequest, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if status != model.PayoutStatusApproved {
		return nil, fmt.Errorf("unexpected status %s", status)
	}
	if len(s.approved) > limit {
		return s.approved[:limit], nil
	}
	return s.approved, nil
}

func (s *stubStore) ClaimPayout(ctx context.Context, id int64) error {
	return s.claimErrs[id]
}

func (s *stubStore) CompletePayout(ctx context.Context, id int64, providerTxID string) error {
	s.completed[id] = providerTxID
	return nil
}

func (s *stubStore) FailPayout(ctx context.Context, id int64, errText string) error {
	s.failed[id] = errText
	return nil
}

type stubProvider struct {
	token    string
	tokenErr error

	tokenCalls int

	payoutErrs map[string]error
	batchIDs   map[string]string
}

func (p *stubProvider) GetAccessToken(ctx context.Context) (string, error) {
	p.tokenCalls++
	if p.tokenErr != nil {
		return "", p.tokenErr
	}
	return p.token, nil
}

func (p *stubProvider) SendPayout(ctx context.Context, accessToken, receiverEmail string, usdCents int64) (string, error) {
	if accessToken != p.token {
		return "", fmt.Errorf("unexpected token %q", accessToken)
	}
	if err := p.payoutErrs[receiverEmail]; err != nil {
		return "", err
	}
	if id, ok := p.batchIDs[receiverEmail]; ok {
		return id, nil
	}
	return "BATCH-" + receiverEmail, nil
}

func payoutReq(id int64, email string) model.PayoutRequest {
	return model.PayoutRequest{
		ID:          id,
		UserID:      1,
		Creds:       5000,
		USDCents:    500,
		PayPalEmail: email,
		Status:      model.PayoutStatusApproved,
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	store := newStubStore()
	provider := &stubProvider{token: "tok"}
	d := NewDispatcher(store, provider, zap.NewNop(), 10)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Found != 0 || summary.Processed != 0 {
		t.Fatalf("summary = %+v, want zero counts", summary)
	}
	if provider.tokenCalls != 0 {
		t.Fatalf("token acquired for empty batch")
	}
}

func TestRun_TokenFailureAbortsBatch(t *testing.T) {
	store := newStubStore(payoutReq(1, "a@example.com"))
	provider := &stubProvider{tokenErr: errors.New("auth failed")}
	d := NewDispatcher(store, provider, zap.NewNop(), 10)

	_, err := d.Run(context.Background())
	if err == nil {
		t.Fatalf("expected error when token acquisition fails")
	}
	if !strings.Contains(err.Error(), "auth failed") {
		t.Fatalf("error = %v, want auth failure", err)
	}
	if len(store.completed) != 0 || len(store.failed) != 0 {
		t.Fatalf("items were touched despite token failure")
	}
}

func TestRun_SingleTokenPerBatch(t *testing.T) {
	store := newStubStore(
		payoutReq(1, "a@example.com"),
		payoutReq(2, "b@example.com"),
		payoutReq(3, "c@example.com"),
	)
	provider := &stubProvider{token: "tok"}
	d := NewDispatcher(store, provider, zap.NewNop(), 10)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if provider.tokenCalls != 1 {
		t.Fatalf("tokenCalls = %d, want 1", provider.tokenCalls)
	}
	if summary.Found != 3 || summary.Processed != 3 {
		t.Fatalf("summary = %+v, want found=3 processed=3", summary)
	}
}

func TestRun_FailureIsolation(t *testing.T) {
	store := newStubStore(
		payoutReq(1, "a@example.com"),
		payoutReq(2, "bad@example.com"),
		payoutReq(3, "c@example.com"),
	)
	provider := &stubProvider{
		token: "tok",
		payoutErrs: map[string]error{
			"bad@example.com": errors.New("RECEIVER_UNREGISTERED"),
		},
	}
	d := NewDispatcher(store, provider, zap.NewNop(), 10)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Found != 3 || summary.Processed != 2 {
		t.Fatalf("summary = %+v, want found=3 processed=2", summary)
	}
	if _, ok := store.completed[1]; !ok {
		t.Fatalf("item 1 not completed")
	}
	if _, ok := store.completed[3]; !ok {
		t.Fatalf("item 3 not completed after failure of item 2")
	}
	if got := store.failed[2]; !strings.Contains(got, "RECEIVER_UNREGISTERED") {
		t.Fatalf("item 2 error = %q, want provider error captured", got)
	}
}

func TestRun_SkipsAlreadyClaimed(t *testing.T) {
	store := newStubStore(
		payoutReq(1, "a@example.com"),
		payoutReq(2, "b@example.com"),
	)
	store.claimErrs[1] = repository.ErrPayoutStatusConflict

	provider := &stubProvider{token: "tok"}
	d := NewDispatcher(store, provider, zap.NewNop(), 10)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("processed = %d, want 1", summary.Processed)
	}
	if _, ok := store.completed[1]; ok {
		t.Fatalf("claimed item must not be sent twice")
	}
	if _, ok := store.failed[1]; ok {
		t.Fatalf("claim conflict must not mark the item failed")
	}
}

func TestRun_RespectsBatchSize(t *testing.T) {
	var approved []model.PayoutRequest
	for i := int64(1); i <= 5; i++ {
		approved = append(approved, payoutReq(i, fmt.Sprintf("u%d@example.com", i)))
	}
	store := newStubStore(approved...)
	provider := &stubProvider{token: "tok"}
	d := NewDispatcher(store, provider, zap.NewNop(), 2)

	summary, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if summary.Found != 2 || summary.Processed != 2 {
		t.Fatalf("summary = %+v, want found=2 processed=2", summary)
	}
}

func TestStartScheduler_StopsOnContextCancel(t *testing.T) {
	store := newStubStore()
	provider := &stubProvider{token: "tok"}
	d := NewDispatcher(store, provider, zap.NewNop(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.StartScheduler(ctx, time.Hour)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("StartScheduler error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("StartScheduler did not stop on context cancel")
	}
}
