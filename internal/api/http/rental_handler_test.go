package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/external"
	"gpurental-backend/internal/payout"
	"gpurental-backend/internal/security"
)

type fakeRentalService struct {
	records map[string]*domain.RentalRecord
	err     error
}

func (f *fakeRentalService) CreateRental(ctx context.Context, gpuID string, hours int32, email string) (*domain.RentalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec := sampleRecord()
	rec.Hours = hours
	return rec, nil
}

func (f *fakeRentalService) GetRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec, ok := f.records[rentalID]
	if !ok {
		return nil, fmt.Errorf("rental %s: %w", rentalID, domain.ErrNotFound)
	}
	return rec, nil
}

func (f *fakeRentalService) ListRentals(ctx context.Context) ([]domain.RentalRecord, error) {
	out := make([]domain.RentalRecord, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeRentalService) VerifyRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	rec := sampleRecord()
	rec.Status = domain.RentalStatusVerified
	score := int32(80)
	rec.VerificationScore = &score
	return rec, nil
}

func (f *fakeRentalService) ResolveRental(ctx context.Context, rentalID, email string) (*domain.RentalRecord, *payout.Distribution, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	rec := sampleRecord()
	rec.Status = domain.RentalStatusResolved
	score := int32(80)
	rec.VerificationScore = &score
	return rec, &payout.Distribution{
		TotalPrice:    rec.TotalPrice,
		Score:         80,
		ProviderShare: decimal.RequireFromString("0.0016"),
		RenterShare:   decimal.RequireFromString("0.0004"),
	}, nil
}

func (f *fakeRentalService) GetCooldowns(ctx context.Context, rentalID string) (time.Duration, time.Duration, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return 42 * time.Second, 0, nil
}

func (f *fakeRentalService) ReconcileRental(ctx context.Context, rentalID string) (*domain.RentalRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return sampleRecord(), nil
}

type fakeCatalogService struct{}

func (f *fakeCatalogService) ListGPUs(ctx context.Context) ([]domain.GPU, error) {
	return []domain.GPU{sampleGPU()}, nil
}

func (f *fakeCatalogService) GetGPU(ctx context.Context, gpuID string) (*domain.GPU, error) {
	gpu := sampleGPU()
	return &gpu, nil
}

type fakeWallet struct {
	declined bool
}

func (w *fakeWallet) RequestAuthorization(ctx context.Context) (external.Identity, error) {
	if w.declined {
		return external.Identity{}, domain.ErrAuthorizationDeclined
	}
	return external.Identity{Address: "0xRenter"}, nil
}

func sampleGPU() domain.GPU {
	return domain.GPU{
		ID:              "gpu-1",
		Model:           "NVIDIA RTX 4090",
		Provider:        "Quantum Computing Services",
		ProviderAddress: "0xProvider",
		PricePerHour:    decimal.RequireFromString("0.0005"),
		MinimumRental:   1,
	}
}

func sampleRecord() *domain.RentalRecord {
	return &domain.RentalRecord{
		RentalID:   "GPU-AB12CD34",
		GPU:        sampleGPU(),
		Hours:      4,
		TotalPrice: decimal.RequireFromString("0.0020"),
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:     domain.RentalStatusPending,
		LedgerReferences: map[string]string{
			domain.ActionDeposit: "0xdep0001",
		},
		EscrowContractRef: "0xEscrowContract",
	}
}

type testServer struct {
	server  *httptest.Server
	rentals *fakeRentalService
	wallet  *fakeWallet
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rentals := &fakeRentalService{records: map[string]*domain.RentalRecord{
		"GPU-AB12CD34": sampleRecord(),
	}}
	wallet := &fakeWallet{}
	tokens := security.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)

	router := NewRouter(RouterConfig{
		Rentals:           rentals,
		Catalog:           &fakeCatalogService{},
		Wallet:            wallet,
		Tokens:            tokens,
		RequestsPerSecond: 1000,
		Burst:             1000,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := tokens.GenerateSessionToken("0xRenter")
	require.NoError(t, err)

	return &testServer{server: srv, rentals: rentals, wallet: wallet, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, authed bool) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCreateRentalEndpoint(t *testing.T) {
	t.Run("creates a rental", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals",
			createRentalRequest{GPUID: "gpu-1", Hours: 4}, true)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var got rentalResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, "GPU-AB12CD34", got.RentalID)
		assert.Equal(t, "PENDING", got.Status)
		assert.Equal(t, "0xdep0001", got.LedgerReferences["deposit"])
	})

	t.Run("requires a session token", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals",
			createRentalRequest{GPUID: "gpu-1", Hours: 4}, false)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("requires gpu_id", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals",
			createRentalRequest{Hours: 4}, true)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("validation failure maps to 422", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rentals.err = &domain.ValidationError{Field: "hours", Err: domain.ErrOutOfRange, Detail: "below minimum"}
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals",
			createRentalRequest{GPUID: "gpu-1", Hours: 0}, true)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

		var body errorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "VALIDATION_FAILED", body.Code)
	})

	t.Run("declined authorization maps to 403", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rentals.err = fmt.Errorf("deposit: %w", domain.ErrAuthorizationDeclined)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals",
			createRentalRequest{GPUID: "gpu-1", Hours: 4}, true)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestVerifyRentalEndpoint(t *testing.T) {
	t.Run("cooldown rejection carries the remaining wait", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rentals.err = &domain.CooldownError{Action: domain.ActionVerify, Remaining: 15 * time.Second}
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals/GPU-AB12CD34/verify", nil, true)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var body errorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "COOLDOWN_ACTIVE", body.Code)
		assert.Equal(t, int64(15), body.RemainingSeconds)
	})

	t.Run("busy rental maps to 409", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rentals.err = fmt.Errorf("rental GPU-AB12CD34: %w", domain.ErrRentalBusy)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals/GPU-AB12CD34/verify", nil, true)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var body errorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "RENTAL_BUSY", body.Code)
	})

	t.Run("gateway outage maps to 502", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rentals.err = fmt.Errorf("verify: %w", domain.ErrExternalUnavailable)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals/GPU-AB12CD34/verify", nil, true)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("successful verify returns the score", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/api/v1/rentals/GPU-AB12CD34/verify", nil, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got rentalResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, "VERIFIED", got.Status)
		require.NotNil(t, got.VerificationScore)
		assert.Equal(t, int32(80), *got.VerificationScore)
	})
}

func TestResolveRentalEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodPost, "/api/v1/rentals/GPU-AB12CD34/resolve", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got resolveRentalResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, "RESOLVED", got.Rental.Status)
	assert.True(t, got.ProviderShare.Equal(decimal.RequireFromString("0.0016")))
	assert.True(t, got.RenterShare.Equal(decimal.RequireFromString("0.0004")))
}

func TestGetRentalEndpoint(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodGet, "/api/v1/rentals/GPU-AB12CD34", nil, true)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got rentalResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, "GPU-AB12CD34", got.RentalID)
	})

	t.Run("unknown rental maps to 404", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodGet, "/api/v1/rentals/GPU-MISSING1", nil, true)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)

		var body errorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "NOT_FOUND", body.Code)
	})
}

func TestGetCooldownsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/v1/rentals/GPU-AB12CD34/cooldowns", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got cooldownsResponse
	decodeBody(t, resp, &got)
	assert.Equal(t, int64(42), got.VerifyRemainingSeconds)
	assert.Equal(t, int64(0), got.ResolveRemainingSeconds)
}

func TestListGPUsEndpoint(t *testing.T) {
	// Catalog browsing needs no session.
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/api/v1/gpus", nil, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var gpus []domain.GPU
	decodeBody(t, resp, &gpus)
	require.Len(t, gpus, 1)
	assert.Equal(t, "NVIDIA RTX 4090", gpus[0].Model)
}

func TestCreateSessionEndpoint(t *testing.T) {
	t.Run("issues a token for an authorized wallet", func(t *testing.T) {
		ts := newTestServer(t)
		resp := ts.do(t, http.MethodPost, "/api/v1/session", nil, false)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got sessionResponse
		decodeBody(t, resp, &got)
		assert.Equal(t, "0xRenter", got.WalletAddress)
		assert.NotEmpty(t, got.Token)
	})

	t.Run("declined authorization maps to 403", func(t *testing.T) {
		ts := newTestServer(t)
		ts.wallet.declined = true
		resp := ts.do(t, http.MethodPost, "/api/v1/session", nil, false)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}
