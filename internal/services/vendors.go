package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/errgroup"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
	"github.com/vevsa/books-auth/pkg/utils"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	vendorSearchCache = "vendors:search"
	vendorSalesCache  = "vendors:sales"
	vendorLogoFolder  = "vendors/logos"
)

type vendorStore interface {
	Create(ctx context.Context, v models.Vendor) (int64, error)
	SetBlocked(ctx context.Context, vendorID int64, status int) error
	Get(ctx context.Context, vendorID int64) (models.Vendor, error)
	Deliveries(ctx context.Context, vendorID int64, offset, limit int) ([]models.Delivery, error)
	DailySales(ctx context.Context, vendorID int64) ([]models.DailySales, error)
	Search(ctx context.Context, key string) ([]models.Vendor, error)
	SetLogo(ctx context.Context, vendorID int64, url string) error
}

type imageUploader interface {
	UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (string, error)
}

type VendorService struct {
	store     vendorStore
	cache     *CacheService
	uploader  imageUploader
	jwtSecret []byte
	log       *slog.Logger
	now       func() time.Time
}

// NewVendorService wires the vendor directory. cache and uploader may be
// nil; logo uploads are then rejected.
func NewVendorService(store vendorStore, cache *CacheService, uploader imageUploader, jwtSecret string, log *slog.Logger) *VendorService {
	return &VendorService{
		store:     store,
		cache:     cache,
		uploader:  uploader,
		jwtSecret: []byte(jwtSecret),
		log:       log,
		now:       time.Now,
	}
}

var errMissingParams = common.Validation("some parameters are missing/invalid")

func (s *VendorService) issueToken(email string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  email,
		Issuer:   "books-auth",
		IssuedAt: jwt.NewNumericDate(s.now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// VendorEmailFromToken validates an access token and returns its subject.
func (s *VendorService) VendorEmailFromToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: invalid access token", common.ErrVerificationFailed)
	}
	return parsed.Claims.GetSubject()
}

// Create registers a vendor and returns its id and access token.
func (s *VendorService) Create(ctx context.Context, v models.Vendor) (int64, string, error) {
	for _, f := range []string{v.Name, v.Email, v.Phone, v.Address, v.DeviceName, v.DeviceOS} {
		if strings.TrimSpace(f) == "" {
			return 0, "", errMissingParams
		}
	}
	if v.City <= 0 || utils.ValidateEmail(v.Email) != nil {
		return 0, "", errMissingParams
	}
	v.Email = utils.NormalizeEmail(v.Email)

	token, err := s.issueToken(v.Email)
	if err != nil {
		return 0, "", fmt.Errorf("%w: sign vendor token: %v", common.ErrStorage, err)
	}
	v.AccessToken = token

	id, err := s.store.Create(ctx, v)
	if err != nil {
		return 0, "", err
	}
	s.invalidateSearch(ctx)
	s.log.InfoContext(ctx, "vendor created", "vendor_id", id)
	return id, token, nil
}

func (s *VendorService) SetBlocked(ctx context.Context, vendorID int64, status int) error {
	if vendorID <= 0 {
		return errMissingParams
	}
	if status != models.VendorBlocked && status != models.VendorUnblocked {
		return common.Validation("Invalid account status provided")
	}
	if err := s.store.SetBlocked(ctx, vendorID, status); err != nil {
		return err
	}
	s.invalidateSearch(ctx)
	s.log.InfoContext(ctx, "vendor status changed", "vendor_id", vendorID, "is_blocked", status)
	return nil
}

// NormalizePage applies the default page size and caps it at MaxPageSize.
func NormalizePage(startFrom, pageSize int) (int, int) {
	if startFrom < 0 {
		startFrom = 0
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return startFrom, pageSize
}

// Details loads the vendor and one page of its deliveries concurrently.
func (s *VendorService) Details(ctx context.Context, vendorID int64, startFrom, pageSize int) (models.VendorDetails, error) {
	if vendorID <= 0 {
		return models.VendorDetails{}, errMissingParams
	}
	startFrom, pageSize = NormalizePage(startFrom, pageSize)

	var out models.VendorDetails
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.store.Get(gctx, vendorID)
		out.Vendor = v
		return err
	})
	g.Go(func() error {
		ds, err := s.store.Deliveries(gctx, vendorID, startFrom, pageSize)
		out.RecentDeliveries = ds
		return err
	})
	if err := g.Wait(); err != nil {
		return models.VendorDetails{}, err
	}
	return out, nil
}

func (s *VendorService) Sales(ctx context.Context, vendorID int64) ([]models.DailySales, error) {
	if vendorID <= 0 {
		return nil, errMissingParams
	}
	key := CacheKey(vendorSalesCache, strconv.FormatInt(vendorID, 10))

	var sales []models.DailySales
	if s.cacheGet(ctx, key, &sales) {
		return sales, nil
	}
	sales, err := s.store.DailySales(ctx, vendorID)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, sales)
	return sales, nil
}

func (s *VendorService) Search(ctx context.Context, key string) ([]models.Vendor, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errMissingParams
	}
	cacheKey := CacheKey(vendorSearchCache, strings.ToLower(key))

	var vendors []models.Vendor
	if s.cacheGet(ctx, cacheKey, &vendors) {
		return vendors, nil
	}
	vendors, err := s.store.Search(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(vendors) == 0 {
		return nil, fmt.Errorf("%w: Invalid vendor", common.ErrNotFound)
	}
	s.cacheSet(ctx, cacheKey, vendors)
	return vendors, nil
}

// UploadLogo stores the image with the upload provider and records its URL.
// token must be the access token issued to the vendor.
func (s *VendorService) UploadLogo(ctx context.Context, vendorID int64, token string, file io.Reader) (string, error) {
	if s.uploader == nil {
		return "", common.Validation("Logo uploads are not configured")
	}
	v, err := s.store.Get(ctx, vendorID)
	if err != nil {
		return "", err
	}
	email, err := s.VendorEmailFromToken(token)
	if err != nil {
		return "", err
	}
	if email != v.Email {
		return "", fmt.Errorf("%w: Access token does not belong to this vendor", common.ErrVerificationFailed)
	}
	url, err := s.uploader.UploadImage(ctx, file, vendorLogoFolder, "vendor_"+strconv.FormatInt(vendorID, 10))
	if err != nil {
		s.log.ErrorContext(ctx, "logo upload failed", "vendor_id", vendorID, "error", err)
		return "", fmt.Errorf("%w: upload logo: %v", common.ErrStorage, err)
	}
	if err := s.store.SetLogo(ctx, vendorID, url); err != nil {
		return "", err
	}
	s.invalidateSearch(ctx)
	return url, nil
}

func (s *VendorService) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.log.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (s *VendorService) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.log.WarnContext(ctx, "cache write failed", "key", key, "error", err)
	}
}

func (s *VendorService) invalidateSearch(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, vendorSearchCache+":"); err != nil {
		s.log.WarnContext(ctx, "cache invalidation failed", "prefix", vendorSearchCache, "error", err)
	}
}
