package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
)

type fakeVendors struct {
	mu          sync.Mutex
	vendors     map[int64]models.Vendor
	nextID      int64
	searchCalls int
	salesCalls  int
	deliveryErr error
	lastPage    [2]int
}

func newFakeVendors() *fakeVendors {
	return &fakeVendors{vendors: map[int64]models.Vendor{}, nextID: 1}
}

func (f *fakeVendors) Create(ctx context.Context, v models.Vendor) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.vendors {
		if existing.Email == v.Email {
			return 0, fmt.Errorf("%w: Vendor already exists", common.ErrAlreadyExists)
		}
	}
	v.ID = f.nextID
	f.nextID++
	f.vendors[v.ID] = v
	return v.ID, nil
}

func (f *fakeVendors) SetBlocked(ctx context.Context, id int64, status int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return fmt.Errorf("%w: Invalid vendor", common.ErrNotFound)
	}
	v.IsBlocked = status
	f.vendors[id] = v
	return nil
}

func (f *fakeVendors) Get(ctx context.Context, id int64) (models.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return models.Vendor{}, fmt.Errorf("%w: Invalid vendor", common.ErrNotFound)
	}
	return v, nil
}

func (f *fakeVendors) Deliveries(ctx context.Context, id int64, offset, limit int) ([]models.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPage = [2]int{offset, limit}
	if f.deliveryErr != nil {
		return nil, f.deliveryErr
	}
	return []models.Delivery{{DeliveryID: 1, BookName: "Physics"}}, nil
}

func (f *fakeVendors) DailySales(ctx context.Context, id int64) ([]models.DailySales, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.salesCalls++
	return []models.DailySales{{Date: "2026-03-01", TotalCommission: 12.5, TotalSales: 250}}, nil
}

func (f *fakeVendors) Search(ctx context.Context, key string) ([]models.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++
	out := []models.Vendor{}
	for _, v := range f.vendors {
		if strings.Contains(strings.ToLower(v.Name), strings.ToLower(key)) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVendors) SetLogo(ctx context.Context, id int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.vendors[id]
	v.LogoURL = &url
	f.vendors[id] = v
	return nil
}

type fakeUploader struct {
	folder, publicID string
	err              error
}

func (u *fakeUploader) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (string, error) {
	u.folder, u.publicID = folder, publicID
	if u.err != nil {
		return "", u.err
	}
	return "https://res.cloudinary.com/demo/image/upload/" + publicID + ".png", nil
}

func sampleVendor() models.Vendor {
	return models.Vendor{
		Name:       "Alpha Books",
		Email:      "Owner@Alpha.example",
		Phone:      "9999999999",
		Address:    "12 Market Road",
		DeviceName: "Pixel",
		DeviceOS:   "Android 14",
		City:       3,
	}
}

func newVendorService(t *testing.T, uploader imageUploader) (*VendorService, *fakeVendors) {
	t.Helper()
	_, client := newRedis(t)
	store := newFakeVendors()
	return NewVendorService(store, NewCacheService(client, time.Minute), uploader, "test-secret", discardLogger()), store
}

func TestVendorService_CreateIssuesToken(t *testing.T) {
	svc, store := newVendorService(t, nil)

	id, token, err := svc.Create(context.Background(), sampleVendor())
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "owner@alpha.example", store.vendors[id].Email)
	assert.Equal(t, token, store.vendors[id].AccessToken)

	email, err := svc.VendorEmailFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner@alpha.example", email)

	_, err = svc.VendorEmailFromToken(token + "x")
	assert.ErrorIs(t, err, common.ErrVerificationFailed)

	other := NewVendorService(store, nil, nil, "different", discardLogger())
	_, err = other.VendorEmailFromToken(token)
	assert.ErrorIs(t, err, common.ErrVerificationFailed)
}

func TestVendorService_CreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *models.Vendor)
	}{
		{"missing name", func(v *models.Vendor) { v.Name = " " }},
		{"missing phone", func(v *models.Vendor) { v.Phone = "" }},
		{"bad email", func(v *models.Vendor) { v.Email = "not-an-email" }},
		{"no city", func(v *models.Vendor) { v.City = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newVendorService(t, nil)
			v := sampleVendor()
			tt.mutate(&v)
			_, _, err := svc.Create(context.Background(), v)
			require.ErrorIs(t, err, common.ErrValidation)
			assert.Equal(t, "some parameters are missing/invalid", common.Message(err))
			assert.Empty(t, store.vendors)
		})
	}
}

func TestVendorService_SetBlocked(t *testing.T) {
	svc, store := newVendorService(t, nil)
	id, _, err := svc.Create(context.Background(), sampleVendor())
	require.NoError(t, err)

	require.NoError(t, svc.SetBlocked(context.Background(), id, models.VendorBlocked))
	assert.Equal(t, models.VendorBlocked, store.vendors[id].IsBlocked)

	err = svc.SetBlocked(context.Background(), id, 7)
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, "Invalid account status provided", common.Message(err))

	assert.ErrorIs(t, svc.SetBlocked(context.Background(), 99, models.VendorUnblocked), common.ErrNotFound)
	assert.ErrorIs(t, svc.SetBlocked(context.Background(), 0, models.VendorUnblocked), common.ErrValidation)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		start, size         int
		wantStart, wantSize int
	}{
		{0, 0, 0, DefaultPageSize},
		{-5, 20, 0, 20},
		{30, 1000, 30, MaxPageSize},
	}
	for _, tt := range tests {
		start, size := NormalizePage(tt.start, tt.size)
		assert.Equal(t, tt.wantStart, start)
		assert.Equal(t, tt.wantSize, size)
	}
}

func TestVendorService_Details(t *testing.T) {
	svc, store := newVendorService(t, nil)
	id, _, err := svc.Create(context.Background(), sampleVendor())
	require.NoError(t, err)

	details, err := svc.Details(context.Background(), id, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, "Alpha Books", details.Name)
	assert.Len(t, details.RecentDeliveries, 1)
	assert.Equal(t, [2]int{20, DefaultPageSize}, store.lastPage)

	_, err = svc.Details(context.Background(), 42, 0, 10)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestVendorService_DetailsDeliveryFailure(t *testing.T) {
	svc, store := newVendorService(t, nil)
	id, _, err := svc.Create(context.Background(), sampleVendor())
	require.NoError(t, err)

	store.deliveryErr = errors.New("boom")
	details, err := svc.Details(context.Background(), id, 0, 10)
	require.Error(t, err)
	assert.Equal(t, models.VendorDetails{}, details)
}

func TestVendorService_SalesCached(t *testing.T) {
	svc, store := newVendorService(t, nil)

	for i := 0; i < 3; i++ {
		sales, err := svc.Sales(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, 250.0, sales[0].TotalSales)
	}
	assert.Equal(t, 1, store.salesCalls)
}

func TestVendorService_SearchCachesAndInvalidates(t *testing.T) {
	svc, store := newVendorService(t, nil)
	ctx := context.Background()

	_, err := svc.Search(ctx, "alpha")
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "Invalid vendor", common.Message(err))

	id, _, err := svc.Create(ctx, sampleVendor())
	require.NoError(t, err)

	found, err := svc.Search(ctx, "Alpha")
	require.NoError(t, err)
	require.Len(t, found, 1)
	_, err = svc.Search(ctx, "ALPHA")
	require.NoError(t, err)
	assert.Equal(t, 2, store.searchCalls)

	require.NoError(t, svc.SetBlocked(ctx, id, models.VendorBlocked))
	found, err = svc.Search(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, models.VendorBlocked, found[0].IsBlocked)
	assert.Equal(t, 3, store.searchCalls)

	_, err = svc.Search(ctx, "  ")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestVendorService_UploadLogo(t *testing.T) {
	up := &fakeUploader{}
	svc, store := newVendorService(t, up)
	id, token, err := svc.Create(context.Background(), sampleVendor())
	require.NoError(t, err)

	url, err := svc.UploadLogo(context.Background(), id, token, strings.NewReader("png"))
	require.NoError(t, err)
	assert.Equal(t, "vendors/logos", up.folder)
	assert.Equal(t, "vendor_1", up.publicID)
	require.NotNil(t, store.vendors[id].LogoURL)
	assert.Equal(t, url, *store.vendors[id].LogoURL)

	_, err = svc.UploadLogo(context.Background(), 9, token, strings.NewReader("png"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	up.err = errors.New("cloud unavailable")
	_, err = svc.UploadLogo(context.Background(), id, token, strings.NewReader("png"))
	assert.ErrorIs(t, err, common.ErrStorage)
}

func TestVendorService_UploadLogoRequiresOwnToken(t *testing.T) {
	up := &fakeUploader{}
	svc, store := newVendorService(t, up)
	first, _, err := svc.Create(context.Background(), sampleVendor())
	require.NoError(t, err)
	other := sampleVendor()
	other.Email = "second@beta.example"
	other.Phone = "8888888888"
	_, otherToken, err := svc.Create(context.Background(), other)
	require.NoError(t, err)

	_, err = svc.UploadLogo(context.Background(), first, otherToken, strings.NewReader("png"))
	require.ErrorIs(t, err, common.ErrVerificationFailed)
	assert.Equal(t, "Access token does not belong to this vendor", common.Message(err))

	_, err = svc.UploadLogo(context.Background(), first, "not-a-jwt", strings.NewReader("png"))
	require.ErrorIs(t, err, common.ErrVerificationFailed)
	assert.Empty(t, up.publicID)
	assert.Nil(t, store.vendors[first].LogoURL)
}

func TestVendorService_UploadLogoUnconfigured(t *testing.T) {
	svc, _ := newVendorService(t, nil)
	_, err := svc.UploadLogo(context.Background(), 1, "", strings.NewReader("png"))
	assert.ErrorIs(t, err, common.ErrValidation)
}
