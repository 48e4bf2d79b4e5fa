package http

import (
	"net/http"

	"gpurental-backend/internal/external"
	"gpurental-backend/internal/security"
)

// SessionHandler exchanges a wallet authorization for a session token
type SessionHandler struct {
	wallet external.Wallet
	tokens security.TokenManager
}

func NewSessionHandler(wallet external.Wallet, tokens security.TokenManager) *SessionHandler {
	return &SessionHandler{
		wallet: wallet,
		tokens: tokens,
	}
}

type sessionResponse struct {
	Token         string `json:"token"`
	WalletAddress string `json:"wallet_address"`
}

func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.wallet.RequestAuthorization(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	token, err := h.tokens.GenerateSessionToken(identity.Address)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		Token:         token,
		WalletAddress: identity.Address,
	})
}
