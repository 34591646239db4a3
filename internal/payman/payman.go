// Package payman is the client for the Payman payment provider. Every
// company pays through its own credential, so clients are built per call
// chain by a Factory rather than shared.
package payman

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hrishi0102/patchpay/internal/util/cryptoutils"
)

// DefaultCurrency is Payman's test-dollar rail.
const DefaultCurrency = "TSD"

// ErrCredential covers a missing, undecryptable or rejected API key.
var ErrCredential = errors.New("failed to initialize payment client")

type Payee struct {
	ID   string
	Name string
}

type Payment struct {
	Reference string
}

type PaymentRequest struct {
	Amount   float64
	PayeeID  string
	Memo     string
	Metadata map[string]interface{}
}

// Client executes provider calls under one company's credential.
type Client interface {
	CreatePayee(ctx context.Context, name, email string) (*Payee, error)
	SendPayment(ctx context.Context, req PaymentRequest) (*Payment, error)
	GetBalance(ctx context.Context, currency string) (float64, error)
}

// Factory builds a Client from a company's sealed credential.
type Factory interface {
	MakeClient(sealedAPIKey string) (Client, error)
}

// HTTPFactory unseals credentials and hands out REST clients.
type HTTPFactory struct {
	BaseURL       string
	EncryptionKey string
	Timeout       time.Duration
}

func NewFactory(baseURL, encryptionKey string, timeout time.Duration) *HTTPFactory {
	return &HTTPFactory{
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		EncryptionKey: encryptionKey,
		Timeout:       timeout,
	}
}

func (f *HTTPFactory) MakeClient(sealedAPIKey string) (Client, error) {
	if sealedAPIKey == "" {
		return nil, ErrCredential
	}
	apiKey, err := cryptoutils.OpenSecret(sealedAPIKey, f.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}
	return &restClient{
		http:    &http.Client{Timeout: f.Timeout},
		baseURL: f.BaseURL,
		apiKey:  apiKey,
	}, nil
}

type restClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func (c *restClient) CreatePayee(ctx context.Context, name, email string) (*Payee, error) {
	payload := map[string]interface{}{
		"type": "TEST_RAILS",
		"name": name,
		"tags": []string{"researcher"},
		"contactDetails": map[string]string{
			"email": email,
		},
	}

	body, err := c.post(ctx, "/payments/payees", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create payee: %w", err)
	}

	id := gjson.GetBytes(body, "id")
	if !id.Exists() {
		return nil, fmt.Errorf("failed to create payee: no id in provider response")
	}
	return &Payee{ID: id.String(), Name: name}, nil
}

func (c *restClient) SendPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	memo := req.Memo
	if memo == "" {
		memo = "Bug bounty payment"
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	payload := map[string]interface{}{
		"amountDecimal": req.Amount,
		"payeeId":       req.PayeeID,
		"memo":          memo,
		"metadata":      metadata,
	}

	body, err := c.post(ctx, "/payments/send-payment", payload)
	if err != nil {
		return nil, fmt.Errorf("failed to send payment: %w", err)
	}

	ref := gjson.GetBytes(body, "reference")
	if !ref.Exists() {
		return nil, fmt.Errorf("failed to send payment: no reference in provider response")
	}
	return &Payment{Reference: ref.String()}, nil
}

func (c *restClient) GetBalance(ctx context.Context, currency string) (float64, error) {
	if currency == "" {
		currency = DefaultCurrency
	}

	url := fmt.Sprintf("%s/balances/currencies/%s", c.baseURL, currency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	body, err := c.do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to check balance: %w", err)
	}

	// The balance endpoint returns either a bare number or an object with
	// a spendableBalance field, depending on the rail.
	parsed := gjson.ParseBytes(body)
	if parsed.Type == gjson.Number {
		return parsed.Float(), nil
	}
	if v := parsed.Get("spendableBalance"); v.Exists() {
		return v.Float(), nil
	}
	return 0, fmt.Errorf("failed to check balance: unexpected provider response")
}

func (c *restClient) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *restClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-payman-api-secret", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%w: provider status %d", ErrCredential, resp.StatusCode)
		}
		return nil, fmt.Errorf("provider status %d", resp.StatusCode)
	}
	return body, nil
}
