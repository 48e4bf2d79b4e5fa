package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"gpurental-backend/internal/domain"
	"gpurental-backend/internal/service"
)

// RentalHandler exposes the rental lifecycle over HTTP
type RentalHandler struct {
	rentals service.RentalService
	catalog service.CatalogService
}

func NewRentalHandler(rentals service.RentalService, catalog service.CatalogService) *RentalHandler {
	return &RentalHandler{
		rentals: rentals,
		catalog: catalog,
	}
}

type createRentalRequest struct {
	GPUID string `json:"gpu_id"`
	Hours int32  `json:"hours"`
	Email string `json:"email,omitempty"`
}

type resolveRentalRequest struct {
	Email string `json:"email,omitempty"`
}

type rentalResponse struct {
	RentalID          string            `json:"rental_id"`
	GPU               domain.GPU        `json:"gpu"`
	Hours             int32             `json:"hours"`
	TotalPrice        decimal.Decimal   `json:"total_price"`
	CreatedAt         time.Time         `json:"created_at"`
	Status            string            `json:"status"`
	LedgerReferences  map[string]string `json:"ledger_references"`
	VerificationScore *int32            `json:"verification_score,omitempty"`
	EscrowContractRef string            `json:"escrow_contract_ref"`
	CanonicalAddress  string            `json:"canonical_address,omitempty"`
	IntegrityFlagged  bool              `json:"integrity_flagged,omitempty"`
}

type resolveRentalResponse struct {
	Rental        rentalResponse  `json:"rental"`
	ProviderShare decimal.Decimal `json:"provider_share"`
	RenterShare   decimal.Decimal `json:"renter_share"`
}

type cooldownsResponse struct {
	VerifyRemainingSeconds  int64 `json:"verify_remaining_seconds"`
	ResolveRemainingSeconds int64 `json:"resolve_remaining_seconds"`
}

func toRentalResponse(rec *domain.RentalRecord) rentalResponse {
	return rentalResponse{
		RentalID:          rec.RentalID,
		GPU:               rec.GPU,
		Hours:             rec.Hours,
		TotalPrice:        rec.TotalPrice,
		CreatedAt:         rec.CreatedAt,
		Status:            string(rec.Status),
		LedgerReferences:  rec.LedgerReferences,
		VerificationScore: rec.VerificationScore,
		EscrowContractRef: rec.EscrowContractRef,
		CanonicalAddress:  rec.CanonicalAddress,
		IntegrityFlagged:  rec.IntegrityFlagged,
	}
}

func (h *RentalHandler) CreateRental(w http.ResponseWriter, r *http.Request) {
	var req createRentalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "BAD_REQUEST",
			Message: "invalid JSON body",
		})
		return
	}
	if req.GPUID == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{
			Code:    "BAD_REQUEST",
			Message: "gpu_id is required",
		})
		return
	}

	rec, err := h.rentals.CreateRental(r.Context(), req.GPUID, req.Hours, req.Email)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toRentalResponse(rec))
}

func (h *RentalHandler) ListRentals(w http.ResponseWriter, r *http.Request) {
	recs, err := h.rentals.ListRentals(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]rentalResponse, 0, len(recs))
	for i := range recs {
		out = append(out, toRentalResponse(&recs[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *RentalHandler) GetRental(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rentals.GetRental(r.Context(), mux.Vars(r)["rentalId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRentalResponse(rec))
}

func (h *RentalHandler) VerifyRental(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rentals.VerifyRental(r.Context(), mux.Vars(r)["rentalId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRentalResponse(rec))
}

func (h *RentalHandler) ResolveRental(w http.ResponseWriter, r *http.Request) {
	var req resolveRentalRequest
	if r.Body != nil {
		// Body is optional; only the notification email rides in it.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	rec, dist, err := h.rentals.ResolveRental(r.Context(), mux.Vars(r)["rentalId"], req.Email)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resolveRentalResponse{
		Rental:        toRentalResponse(rec),
		ProviderShare: dist.ProviderShare,
		RenterShare:   dist.RenterShare,
	})
}

func (h *RentalHandler) GetCooldowns(w http.ResponseWriter, r *http.Request) {
	verifyLeft, resolveLeft, err := h.rentals.GetCooldowns(r.Context(), mux.Vars(r)["rentalId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cooldownsResponse{
		VerifyRemainingSeconds:  int64(verifyLeft.Seconds()),
		ResolveRemainingSeconds: int64(resolveLeft.Seconds()),
	})
}

func (h *RentalHandler) ReconcileRental(w http.ResponseWriter, r *http.Request) {
	rec, err := h.rentals.ReconcileRental(r.Context(), mux.Vars(r)["rentalId"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toRentalResponse(rec))
}

func (h *RentalHandler) ListGPUs(w http.ResponseWriter, r *http.Request) {
	gpus, err := h.catalog.ListGPUs(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, gpus)
}
