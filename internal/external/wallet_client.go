package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/logger"
)

// WalletClient asks the wallet/signing subsystem to authorize ledger writes
// for the current session. A decline by the user is surfaced as
// domain.ErrAuthorizationDeclined so callers can abandon the action rather
// than retry it.
type WalletClient struct {
	baseURL string
	client  *http.Client
}

func NewWalletClient(baseURL string, timeout time.Duration) *WalletClient {
	return &WalletClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *WalletClient) RequestAuthorization(ctx context.Context) (Identity, error) {
	logger.ExternalServiceCall("wallet", "request_authorization")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/authorize", nil)
	if err != nil {
		return Identity{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		logger.ExternalServiceResult("wallet", "request_authorization", err)
		return Identity{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		err := fmt.Errorf("wallet: %w", domain.ErrAuthorizationDeclined)
		logger.ExternalServiceResult("wallet", "request_authorization", err)
		return Identity{}, err
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("wallet status %d: %w", resp.StatusCode, domain.ErrExternalUnavailable)
		logger.ExternalServiceResult("wallet", "request_authorization", err)
		return Identity{}, err
	}

	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return Identity{}, fmt.Errorf("decode wallet response: %w", err)
	}
	if id.Address == "" {
		return Identity{}, fmt.Errorf("wallet returned empty identity: %w", domain.ErrExternalUnavailable)
	}
	logger.ExternalServiceResult("wallet", "request_authorization", nil, "address", id.Address)
	return id, nil
}
