package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/logger"
)

// LedgerClient talks to the escrow gateway fronting the on-chain contract.
// The gateway signs and submits transactions and answers only once they are
// mined, so a returned tx_ref is always a confirmed one.
type LedgerClient struct {
	baseURL     string
	contractRef string
	client      *http.Client
}

func NewLedgerClient(baseURL, contractRef string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{
		baseURL:     baseURL,
		contractRef: contractRef,
		client:      &http.Client{Timeout: timeout},
	}
}

// ContractRef returns the escrow contract instance this client is bound to.
func (c *LedgerClient) ContractRef() string { return c.contractRef }

type txResponse struct {
	TxRef string `json:"tx_ref"`
	Error string `json:"error,omitempty"`
}

func (c *LedgerClient) Deposit(ctx context.Context, recordRef, providerAddress string, amount decimal.Decimal) (string, error) {
	body := map[string]string{
		"record_ref":       recordRef,
		"provider_address": providerAddress,
		"amount":           amount.String(),
	}
	return c.submit(ctx, "deposit", body)
}

func (c *LedgerClient) Verify(ctx context.Context, recordRef string, oracleParams map[string]string) (string, error) {
	body := map[string]interface{}{
		"record_ref":    recordRef,
		"oracle_params": oracleParams,
	}
	return c.submit(ctx, "verify", body)
}

func (c *LedgerClient) Resolve(ctx context.Context, recordRef string) (string, error) {
	return c.submit(ctx, "resolve", map[string]string{"record_ref": recordRef})
}

func (c *LedgerClient) ReadResult(ctx context.Context, recordRef string) (int32, error) {
	logger.ExternalServiceCall("ledger", "read_result", "record_ref", recordRef)

	url := fmt.Sprintf("%s/contracts/%s/result?record_ref=%s", c.baseURL, c.contractRef, recordRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		logger.ExternalServiceResult("ledger", "read_result", err)
		return 0, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		logger.ExternalServiceResult("ledger", "read_result", err)
		return 0, err
	}

	var out struct {
		Score int32 `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode ledger result: %w", err)
	}
	logger.ExternalServiceResult("ledger", "read_result", nil, "score", out.Score)
	return out.Score, nil
}

func (c *LedgerClient) submit(ctx context.Context, action string, body interface{}) (string, error) {
	logger.ExternalServiceCall("ledger", action, "contract", c.contractRef)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/contracts/%s/%s", c.baseURL, c.contractRef, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		logger.ExternalServiceResult("ledger", action, err)
		return "", err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		logger.ExternalServiceResult("ledger", action, err)
		return "", err
	}

	var out txResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ledger response: %w", err)
	}
	if out.TxRef == "" {
		return "", fmt.Errorf("ledger %s: empty tx_ref: %w", action, domain.ErrExternalRejected)
	}
	logger.ExternalServiceResult("ledger", action, nil, "tx_ref", out.TxRef)
	return out.TxRef, nil
}

// classifyTransportError maps network failures onto the transient branch of
// the error taxonomy. Context cancellation passes through untouched.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%v: %w", err, domain.ErrExternalUnavailable)
	}
	return fmt.Errorf("%v: %w", err, domain.ErrExternalUnavailable)
}

// classifyStatus maps HTTP status codes onto the taxonomy: 5xx is transient,
// 4xx is a permanent rejection by the contract or gateway logic.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 500 {
		return fmt.Errorf("gateway status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(detail), domain.ErrExternalUnavailable)
	}
	return fmt.Errorf("gateway status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(detail), domain.ErrExternalRejected)
}
