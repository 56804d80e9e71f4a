package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ticket-settlement/config"
	"ticket-settlement/utils"
)

// Client wraps the payment provider's HTTP API for the money-movement calls
// settlement needs. Every call runs through a circuit breaker so a provider
// outage fails fast instead of stalling the worker pool.
type Client struct {
	baseURL   string
	secretKey string
	hc        *http.Client
	breaker   *utils.CircuitBreaker
	log       *logrus.Entry
}

func NewClient(cfg config.GatewayConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: utils.NewCircuitBreaker("payment-gateway"),
		log:     logrus.WithField("component", "gateway"),
	}
}

// Breaker exposes breaker state for the health endpoint.
func (c *Client) Breaker() *utils.CircuitBreaker {
	return c.breaker
}

type reply struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) call(ctx context.Context, method, path string, body any, out any) error {
	_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		return nil, c.do(ctx, method, path, body, out)
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var bodyReader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway %s: marshal body: %w", path, err)
		}
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("gateway %s: new request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: http.Do: %w", path, err)
	}
	defer resp.Body.Close()

	var rep reply
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&rep); err != nil {
		return fmt.Errorf("gateway %s: decode reply: %w", path, err)
	}
	if resp.StatusCode >= 300 || !rep.Status {
		return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, rep.Message)
	}

	if out != nil && len(rep.Data) > 0 {
		if err := json.Unmarshal(rep.Data, out); err != nil {
			return fmt.Errorf("gateway %s: decode data: %w", path, err)
		}
	}
	return nil
}

type AccountDetails struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}

// VerifyAccountDetails resolves an account number against the provider
// before a recipient is created for it.
func (c *Client) VerifyAccountDetails(ctx context.Context, accountNumber, bankCode string) (*AccountDetails, error) {
	var details AccountDetails
	path := fmt.Sprintf("/bank/resolve?account_number=%s&bank_code=%s", accountNumber, bankCode)
	if err := c.call(ctx, http.MethodGet, path, nil, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// CreateTransferRecipient registers payout details and returns the
// recipient code transfers are addressed to.
func (c *Client) CreateTransferRecipient(ctx context.Context, name, accountNumber, bankCode string) (string, error) {
	body := map[string]string{
		"type":           "nuban",
		"name":           name,
		"account_number": accountNumber,
		"bank_code":      bankCode,
	}
	var data struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.call(ctx, http.MethodPost, "/transferrecipient", body, &data); err != nil {
		return "", err
	}
	return data.RecipientCode, nil
}

// DeleteTransferRecipient removes a one-time refund recipient after use.
func (c *Client) DeleteTransferRecipient(ctx context.Context, recipientCode string) error {
	return c.call(ctx, http.MethodDelete, "/transferrecipient/"+recipientCode, nil, nil)
}

type TransferRequest struct {
	RecipientCode string            `json:"recipient"`
	Amount        decimal.Decimal   `json:"amount"`
	Reason        string            `json:"reason"`
	Reference     string            `json:"reference,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// InitiateTransfer starts a payout and returns the gateway transfer code.
// The outcome arrives later as a transfer.* webhook.
func (c *Client) InitiateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	body := map[string]any{
		"source":    "balance",
		"recipient": req.RecipientCode,
		"amount":    req.Amount,
		"reason":    req.Reason,
		"metadata":  req.Metadata,
	}
	if req.Reference != "" {
		body["reference"] = req.Reference
	}

	var data struct {
		TransferCode string `json:"transfer_code"`
	}
	if err := c.call(ctx, http.MethodPost, "/transfer", body, &data); err != nil {
		return "", err
	}

	c.log.WithFields(logrus.Fields{"recipient": req.RecipientCode, "reason": req.Reason}).
		Info("transfer initiated")
	return data.TransferCode, nil
}

// RetryTransfer replays a failed transfer under the stored retry key, which
// the provider uses as an idempotency reference so the payout cannot double.
func (c *Client) RetryTransfer(ctx context.Context, req TransferRequest, recipientCode, retryKey string) (string, error) {
	req.RecipientCode = recipientCode
	req.Reference = retryKey
	return c.InitiateTransfer(ctx, req)
}

// InitiateRefund asks the provider to reverse a charge. The outcome arrives
// later as a refund.* webhook.
func (c *Client) InitiateRefund(ctx context.Context, reference string, metadata map[string]string) error {
	body := map[string]any{
		"transaction": reference,
		"metadata":    metadata,
	}
	if err := c.call(ctx, http.MethodPost, "/refund", body, nil); err != nil {
		return err
	}

	c.log.WithField("reference", reference).Info("refund initiated")
	return nil
}

// InitializeTransaction opens a checkout session for a purchase and returns
// the URL the attendee completes payment on.
func (c *Client) InitializeTransaction(ctx context.Context, email string, amount decimal.Decimal, metadata map[string]any) (string, error) {
	body := map[string]any{
		"email":    email,
		"amount":   amount,
		"metadata": metadata,
	}
	var data struct {
		AuthorizationURL string `json:"authorization_url"`
	}
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return "", err
	}
	return data.AuthorizationURL, nil
}
