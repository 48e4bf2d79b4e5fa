package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/logger"
)

// PinningClient publishes canonical rental records to a Pinata-style IPFS
// pinning API and reads them back through a gateway. The address returned by
// Publish is the content hash; identical bytes pin to the same address.
type PinningClient struct {
	apiURL     string
	gatewayURL string
	apiKey     string
	apiSecret  string
	client     *http.Client
}

func NewPinningClient(apiURL, gatewayURL, apiKey, apiSecret string, timeout time.Duration) *PinningClient {
	return &PinningClient{
		apiURL:     apiURL,
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		client:     &http.Client{Timeout: timeout},
	}
}

func (c *PinningClient) Publish(ctx context.Context, record []byte) (string, error) {
	logger.ExternalServiceCall("content_store", "publish", "bytes", len(record))

	url := c.apiURL + "/pinning/pinJSONToIPFS"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(record))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.apiSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		logger.ExternalServiceResult("content_store", "publish", err)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("pinning status %d: %s: %w", resp.StatusCode, bytes.TrimSpace(detail), domain.ErrExternalUnavailable)
		logger.ExternalServiceResult("content_store", "publish", err)
		return "", err
	}

	var out struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode pinning response: %w", err)
	}
	if out.IpfsHash == "" {
		return "", fmt.Errorf("pinning returned no hash: %w", domain.ErrExternalUnavailable)
	}
	logger.ExternalServiceResult("content_store", "publish", nil, "address", out.IpfsHash)
	return out.IpfsHash, nil
}

func (c *PinningClient) Fetch(ctx context.Context, address string) ([]byte, error) {
	logger.ExternalServiceCall("content_store", "fetch", "address", address)

	url := c.gatewayURL + "/ipfs/" + address
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		err = classifyTransportError(err)
		logger.ExternalServiceResult("content_store", "fetch", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		err := fmt.Errorf("content address %s: %w", address, domain.ErrNotFound)
		logger.ExternalServiceResult("content_store", "fetch", err)
		return nil, err
	}
	if resp.StatusCode >= 400 {
		err := fmt.Errorf("gateway status %d: %w", resp.StatusCode, domain.ErrExternalUnavailable)
		logger.ExternalServiceResult("content_store", "fetch", err)
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read gateway response: %w", err)
	}
	logger.ExternalServiceResult("content_store", "fetch", nil, "bytes", len(data))
	return data, nil
}
