// Package paypal предоставляет клиент для PayPal Payouts API.
package paypal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/mmeshcher/credpulse-system/internal/model"
)

// Client инкапсулирует HTTP-взаимодействие с PayPal API.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// NewClient создаёт клиент PayPal API с указанными учётными данными.
func NewClient(baseURL, clientID, clientSecret string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   rc.StandardClient(),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type apiError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"message"`
	Details          []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

// reason возвращает наиболее содержательное описание ошибки из ответа PayPal.
func (e *apiError) reason() string {
	if len(e.Details) > 0 && e.Details[0].Issue != "" {
		return e.Details[0].Issue
	}
	if e.Message != "" {
		return e.Message
	}
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	return "unknown PayPal error"
}

// GetAccessToken запрашивает краткоживущий токен доступа.
// Токен переиспользуется для всех выплат одного батча.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("paypal client not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return "", fmt.Errorf("paypal token: unexpected status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("paypal token: %s", apiErr.reason())
	}

	var result tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("paypal token: empty access_token")
	}

	return result.AccessToken, nil
}

type payoutRequest struct {
	SenderBatchHeader senderBatchHeader `json:"sender_batch_header"`
	Items             []payoutItem      `json:"items"`
}

type senderBatchHeader struct {
	SenderBatchID string `json:"sender_batch_id"`
	EmailSubject  string `json:"email_subject"`
	RecipientType string `json:"recipient_type"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note"`
}

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
	} `json:"batch_header"`
}

// SendPayout отправляет одну выплату на указанную PayPal-почту и возвращает
// идентификатор батча, присвоенный провайдером.
func (c *Client) SendPayout(ctx context.Context, accessToken, receiverEmail string, usdCents int64) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("paypal client not configured")
	}

	body := payoutRequest{
		SenderBatchHeader: senderBatchHeader{
			SenderBatchID: "credpulse_payout_" + uuid.NewString(),
			EmailSubject:  "You have received a reward from CredPulse!",
			RecipientType: "EMAIL",
		},
		Items: []payoutItem{
			{
				RecipientType: "EMAIL",
				Amount: payoutAmount{
					Value:    model.FormatUSD(usdCents),
					Currency: "USD",
				},
				Receiver: receiverEmail,
				Note:     "Thank you for using CredPulse!",
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal payout: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payments/payouts",
		strings.NewReader(string(payload)),
	)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return "", fmt.Errorf("paypal payout: unexpected status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("paypal payout: %s", apiErr.reason())
	}

	var result payoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode payout response: %w", err)
	}
	if result.BatchHeader.PayoutBatchID == "" {
		return "", fmt.Errorf("paypal payout: empty payout_batch_id")
	}

	return result.BatchHeader.PayoutBatchID, nil
}
