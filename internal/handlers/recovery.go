package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vevsa/books-auth/internal/models"
)

type recoveryAPI interface {
	Initiate(ctx context.Context, fromKey, newKey string, narrowTo []string) (string, error)
	TrusteeSubmit(ctx context.Context, requestID, trustee, trustData string) (models.SubmitResult, error)
	ListPendingForTrustee(ctx context.Context, trustee string) (models.PendingForTrustee, error)
	Finalize(ctx context.Context, requestID, fromKey string) (models.RecoveryRequest, error)
	RequesterStatus(ctx context.Context, fromKey string) ([]models.RecoveryRequestWithDetails, error)
	Events(ctx context.Context, requestID string) ([]models.RecoveryEvent, error)
}

type RecoveryHandler struct {
	coord recoveryAPI
	rs    Responder
}

func NewRecoveryHandler(coord recoveryAPI, rs Responder) *RecoveryHandler {
	return &RecoveryHandler{coord: coord, rs: rs}
}

type initiateRequest struct {
	FromPublicKey string `json:"fromPublicKey"`
	NewPublicKey  string `json:"newPublicKey"`
	TrustData     []struct {
		Trustee string `json:"trustee"`
	} `json:"trustData"`
}

type submitRequest struct {
	RequestID        string `json:"requestId"`
	TrusteePublicKey string `json:"trusteePublicKey"`
	TrustData        string `json:"trustData"`
}

type finalizeRequest struct {
	RequestID     string `json:"requestId"`
	FromPublicKey string `json:"fromPublicKey"`
}

// Initiate opens a recovery request. trustData, when present, narrows the
// registered trustees to the listed ones.
func (h *RecoveryHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	narrow := make([]string, 0, len(req.TrustData))
	for _, t := range req.TrustData {
		narrow = append(narrow, t.Trustee)
	}

	id, err := h.coord.Initiate(r.Context(), req.FromPublicKey, req.NewPublicKey, narrow)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Request Inserted SuccessFully", map[string]any{"requestId": id})
}

func (h *RecoveryHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	res, err := h.coord.TrusteeSubmit(r.Context(), req.RequestID, req.TrusteePublicKey, req.TrustData)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Updated SuccessFully", map[string]any{
		"recoveryStatus": res.Request.RecoveryStatus,
		"pending":        res.Pending,
	})
}

func (h *RecoveryHandler) Pending(w http.ResponseWriter, r *http.Request) {
	out, err := h.coord.ListPendingForTrustee(r.Context(), r.URL.Query().Get("trusteePublicKey"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Fetched SuccessFully", map[string]any{
		"trustData":    out.TrustData,
		"recoveryData": out.RecoveryData,
	})
}

func (h *RecoveryHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	closed, err := h.coord.Finalize(r.Context(), req.RequestID, req.FromPublicKey)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Updated SuccessFully", map[string]any{"data": closed})
}

func (h *RecoveryHandler) Status(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.coord.RequesterStatus(r.Context(), r.URL.Query().Get("publicKey"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	if len(reqs) == 0 {
		h.rs.Complete(w, "No Requests Found!", map[string]any{"data": reqs})
		return
	}
	h.rs.Complete(w, "Fetched SuccessFully", map[string]any{"data": reqs})
}

func (h *RecoveryHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, err := h.coord.Events(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Fetched SuccessFully", map[string]any{"data": events})
}
