package handlers

import (
	"context"
	"net/http"

	"github.com/vevsa/books-auth/internal/models"
)

type userAPI interface {
	Register(ctx context.Context, publicKey, privateKeyHash string) error
	Login(ctx context.Context, publicKey, privateKeyHash string) (*models.KeyUser, error)
	Search(ctx context.Context, publicKey string) (*models.KeyUser, error)
	SendRegistrationOTP(ctx context.Context, email string) (string, error)
	SendRecoveryOTP(ctx context.Context, email string) (string, error)
	VerifyRegistrationOTP(ctx context.Context, code, sessionID, email, publicKey string) (*models.KeyUser, error)
	VerifyRecoveryOTP(ctx context.Context, code, sessionID, email string) (*models.KeyUser, error)
}

type trustAPI interface {
	RecordTrust(ctx context.Context, truster string, entries []models.TrustEntry) error
	LookupByTruster(ctx context.Context, truster string) ([]models.TrustRelation, error)
}

// UserHandler serves key user registration, login, email verification and
// the trust registry.
type UserHandler struct {
	users userAPI
	trust trustAPI
	rs    Responder
}

func NewUserHandler(users userAPI, trust trustAPI, rs Responder) *UserHandler {
	return &UserHandler{users: users, trust: trust, rs: rs}
}

type credentialsRequest struct {
	PublicKey      string `json:"publicKey"`
	PrivateKeyHash string `json:"privateKeyHash"`
}

type trustRequest struct {
	PublicKey string              `json:"publicKey"`
	TrustData []models.TrustEntry `json:"trustData"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	OTP       otpValue `json:"otp"`
	SessionID string   `json:"sessionId"`
	Email     string   `json:"email"`
	PublicKey string   `json:"publicKey"`
}

func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	if err := h.users.Register(r.Context(), req.PublicKey, req.PrivateKeyHash); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "User Registered successfully", nil)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	user, err := h.users.Login(r.Context(), req.PublicKey, req.PrivateKeyHash)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "User verified", map[string]any{"data": user})
}

// Search looks a user up by ?publicKey=.
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Search(r.Context(), r.URL.Query().Get("publicKey"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Fetched SuccessFully", map[string]any{"data": user})
}

func (h *UserHandler) RecordTrust(w http.ResponseWriter, r *http.Request) {
	var req trustRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	if err := h.trust.RecordTrust(r.Context(), req.PublicKey, req.TrustData); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Request Inserted SuccessFully", nil)
}

func (h *UserHandler) ListTrust(w http.ResponseWriter, r *http.Request) {
	rels, err := h.trust.LookupByTruster(r.Context(), r.URL.Query().Get("publicKey"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Fetched SuccessFully", map[string]any{"data": rels})
}

// SendOTP emails a registration code. Only the session id is returned.
func (h *UserHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, h.users.SendRegistrationOTP)
}

func (h *UserHandler) SendRecoveryOTP(w http.ResponseWriter, r *http.Request) {
	h.sendOTP(w, r, h.users.SendRecoveryOTP)
}

func (h *UserHandler) sendOTP(w http.ResponseWriter, r *http.Request, send func(context.Context, string) (string, error)) {
	var req emailRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	sessionID, err := send(r.Context(), req.Email)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Otp sent successfully", map[string]any{"sessionId": sessionID})
}

func (h *UserHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	user, err := h.users.VerifyRegistrationOTP(r.Context(), string(req.OTP), req.SessionID, req.Email, req.PublicKey)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "User verified", map[string]any{"userDetails": user})
}

func (h *UserHandler) VerifyRecoveryOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	user, err := h.users.VerifyRecoveryOTP(r.Context(), string(req.OTP), req.SessionID, req.Email)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "User verified", map[string]any{"userDetails": user})
}
