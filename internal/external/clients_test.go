package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpurental-backend/internal/domain"
)

func TestLedgerClient(t *testing.T) {
	t.Run("Deposit returns confirmed tx ref", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/contracts/0xescrow/deposit", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "QmRecord", body["record_ref"])
			assert.Equal(t, "0.002", body["amount"])
			json.NewEncoder(w).Encode(map[string]string{"tx_ref": "0xabc"})
		}))
		defer srv.Close()

		c := NewLedgerClient(srv.URL, "0xescrow", time.Second)
		ref, err := c.Deposit(context.Background(), "QmRecord", "0xprovider", decimal.RequireFromString("0.002"))
		require.NoError(t, err)
		assert.Equal(t, "0xabc", ref)
	})

	t.Run("Contract rejection maps to ExternalRejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "already verified", http.StatusConflict)
		}))
		defer srv.Close()

		c := NewLedgerClient(srv.URL, "0xescrow", time.Second)
		_, err := c.Verify(context.Background(), "QmRecord", nil)
		assert.ErrorIs(t, err, domain.ErrExternalRejected)
		assert.Contains(t, err.Error(), "already verified")
	})

	t.Run("Gateway outage maps to ExternalUnavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream node down", http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewLedgerClient(srv.URL, "0xescrow", time.Second)
		_, err := c.Resolve(context.Background(), "QmRecord")
		assert.ErrorIs(t, err, domain.ErrExternalUnavailable)
	})

	t.Run("Unreachable gateway maps to ExternalUnavailable", func(t *testing.T) {
		c := NewLedgerClient("http://127.0.0.1:1", "0xescrow", 200*time.Millisecond)
		_, err := c.Resolve(context.Background(), "QmRecord")
		assert.ErrorIs(t, err, domain.ErrExternalUnavailable)
	})

	t.Run("ReadResult returns oracle score", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "QmRecord", r.URL.Query().Get("record_ref"))
			json.NewEncoder(w).Encode(map[string]int32{"score": 80})
		}))
		defer srv.Close()

		c := NewLedgerClient(srv.URL, "0xescrow", time.Second)
		score, err := c.ReadResult(context.Background(), "QmRecord")
		require.NoError(t, err)
		assert.Equal(t, int32(80), score)
	})
}

func TestPinningClient(t *testing.T) {
	t.Run("Publish pins JSON and returns address", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/pinning/pinJSONToIPFS", r.URL.Path)
			assert.Equal(t, "key", r.Header.Get("pinata_api_key"))
			json.NewEncoder(w).Encode(map[string]string{"IpfsHash": "QmHash"})
		}))
		defer srv.Close()

		c := NewPinningClient(srv.URL, srv.URL, "key", "secret", time.Second)
		addr, err := c.Publish(context.Background(), []byte(`{"rental_id":"GPU-1"}`))
		require.NoError(t, err)
		assert.Equal(t, "QmHash", addr)
	})

	t.Run("Fetch round-trips bytes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ipfs/QmHash", r.URL.Path)
			w.Write([]byte(`{"rental_id":"GPU-1"}`))
		}))
		defer srv.Close()

		c := NewPinningClient(srv.URL, srv.URL, "key", "secret", time.Second)
		data, err := c.Fetch(context.Background(), "QmHash")
		require.NoError(t, err)
		assert.JSONEq(t, `{"rental_id":"GPU-1"}`, string(data))
	})

	t.Run("Fetch of unknown address is NotFound", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		c := NewPinningClient(srv.URL, srv.URL, "key", "secret", time.Second)
		_, err := c.Fetch(context.Background(), "QmUnknown")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestWalletClient(t *testing.T) {
	t.Run("Authorization granted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(Identity{Address: "0xrenter"})
		}))
		defer srv.Close()

		c := NewWalletClient(srv.URL, time.Second)
		id, err := c.RequestAuthorization(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "0xrenter", id.Address)
	})

	t.Run("Decline is its own condition", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "user declined", http.StatusForbidden)
		}))
		defer srv.Close()

		c := NewWalletClient(srv.URL, time.Second)
		_, err := c.RequestAuthorization(context.Background())
		assert.ErrorIs(t, err, domain.ErrAuthorizationDeclined)
		assert.NotErrorIs(t, err, domain.ErrExternalUnavailable)
	})
}
