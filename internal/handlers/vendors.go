package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
)

const maxLogoBytes = 5 << 20

type vendorAPI interface {
	Create(ctx context.Context, v models.Vendor) (int64, string, error)
	SetBlocked(ctx context.Context, vendorID int64, status int) error
	Details(ctx context.Context, vendorID int64, startFrom, pageSize int) (models.VendorDetails, error)
	Sales(ctx context.Context, vendorID int64) ([]models.DailySales, error)
	Search(ctx context.Context, key string) ([]models.Vendor, error)
	UploadLogo(ctx context.Context, vendorID int64, token string, file io.Reader) (string, error)
}

type VendorHandler struct {
	vendors vendorAPI
	rs      Responder
}

func NewVendorHandler(vendors vendorAPI, rs Responder) *VendorHandler {
	return &VendorHandler{vendors: vendors, rs: rs}
}

type createVendorRequest struct {
	Name       string `json:"vendor_name"`
	Email      string `json:"vendor_email"`
	Phone      string `json:"vendor_phone"`
	Address    string `json:"vendor_address"`
	DeviceName string `json:"device_name"`
	OSVersion  string `json:"os_version"`
	City       int    `json:"vendor_city"`
}

type blockVendorRequest struct {
	VendorID int64 `json:"vendor_id"`
	Status   *int  `json:"status"`
}

var errBadParams = common.Validation("some parameters are missing/invalid")

func vendorIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "vendorID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadParams
	}
	return id, nil
}

// queryInt reads an optional integer query parameter; absent means def.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errBadParams
	}
	return n, nil
}

func (h *VendorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	id, token, err := h.vendors.Create(r.Context(), models.Vendor{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Address:    req.Address,
		DeviceName: req.DeviceName,
		DeviceOS:   req.OSVersion,
		City:       req.City,
	})
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Successfully created vendor", map[string]any{
		"vendor_id":    id,
		"access_token": token,
	})
}

func (h *VendorHandler) Block(w http.ResponseWriter, r *http.Request) {
	var req blockVendorRequest
	if err := decodeJSON(r, &req); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	if req.Status == nil {
		h.rs.Fail(w, r, errBadParams)
		return
	}
	if err := h.vendors.SetBlocked(r.Context(), req.VendorID, *req.Status); err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Successfully blocked/unblocked user", nil)
}

// Details serves /vendors/{vendorID}?start_from=&page_size=.
func (h *VendorHandler) Details(w http.ResponseWriter, r *http.Request) {
	id, err := vendorIDParam(r)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	start, err := queryInt(r, "start_from", 0)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	size, err := queryInt(r, "page_size", 0)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}

	details, err := h.vendors.Details(r.Context(), id, start, size)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Successfully fetched vendor details", map[string]any{"data": details})
}

func (h *VendorHandler) Sales(w http.ResponseWriter, r *http.Request) {
	id, err := vendorIDParam(r)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	sales, err := h.vendors.Sales(r.Context(), id)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Successfully fetched sales information from database", map[string]any{"data": sales})
}

func (h *VendorHandler) Search(w http.ResponseWriter, r *http.Request) {
	vendors, err := h.vendors.Search(r.Context(), r.URL.Query().Get("key"))
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "Successfully fetched data from database", map[string]any{"data": vendors})
}

// bearerToken returns the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// UploadLogo takes a multipart "file" field of at most 5MB. The caller
// authenticates with the vendor's access token.
func (h *VendorHandler) UploadLogo(w http.ResponseWriter, r *http.Request) {
	id, err := vendorIDParam(r)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	token, ok := bearerToken(r)
	if !ok {
		h.rs.Fail(w, r, fmt.Errorf("%w: Missing access token", common.ErrVerificationFailed))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxLogoBytes+1024)
	if err := r.ParseMultipartForm(maxLogoBytes); err != nil {
		h.rs.Fail(w, r, common.Validation("Failed to parse form"))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.rs.Fail(w, r, common.Validation("No file provided"))
		return
	}
	defer file.Close()

	url, err := h.vendors.UploadLogo(r.Context(), id, token, file)
	if err != nil {
		h.rs.Fail(w, r, err)
		return
	}
	h.rs.Complete(w, "File uploaded successfully", map[string]any{"url": url})
}
