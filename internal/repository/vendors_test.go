package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/models"
)

var vendorCols = []string{"vendor_id", "vendor_name", "vendor_email", "vendor_phone", "vendor_address",
	"vendor_device_name", "vendor_device_os", "vendor_city", "access_token", "is_blocked", "logo_url", "created_on"}

func sampleVendor() models.Vendor {
	return models.Vendor{
		Name: "Sharma Books", Email: "sharma@example.com", Phone: "9990001111",
		Address: "12 MG Road", DeviceName: "Pixel", DeviceOS: "android", City: 3, AccessToken: "tok",
	}
}

func TestVendorCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)
	v := sampleVendor()

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM vendors`).WithArgs(v.Email, v.Phone).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO vendors`).
		WithArgs(v.Name, v.Email, v.Phone, v.Address, v.DeviceName, v.DeviceOS, v.City, v.AccessToken).
		WillReturnRows(sqlmock.NewRows([]string{"vendor_id"}).AddRow(42))

	id, err := repo.Create(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestVendorCreate_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := repo.Create(context.Background(), sampleVendor())
	require.ErrorIs(t, err, common.ErrAlreadyExists)
	assert.Equal(t, "A vendor already exists with this email/phone", common.Message(err))
}

func TestVendorSetBlocked_UnknownVendor(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectExec(`UPDATE vendors SET is_blocked = \$1 WHERE vendor_id = \$2`).WithArgs(1, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetBlocked(context.Background(), 7, 1)
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, "Invalid vendor id provided", common.Message(err))
}

func TestVendorGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectQuery(`FROM vendors WHERE vendor_id = \$1`).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(vendorCols).
			AddRow(42, "Sharma Books", "sharma@example.com", "9990001111", "12 MG Road", "Pixel", "android", 3, "tok", 0, nil, testNow))

	v, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Sharma Books", v.Name)
	assert.Nil(t, v.LogoURL)
}

func TestVendorDeliveries_Paging(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectQuery(`OFFSET \$2 LIMIT \$3`).WithArgs(int64(42), 10, 5).
		WillReturnRows(sqlmock.NewRows([]string{"delivery_id", "book_id", "book_price", "mrp", "vevsa_commission",
			"book_name", "book_stream", "book_semester", "type", "book_author", "book_category", "publisher", "logged_on",
			"class", "competition_name", "is_ncert", "is_guide"}).
			AddRow(1, 9, 250.0, 300.0, 25.0, "Physics", nil, 2, nil, "HC Verma", nil, nil, testNow, 11, nil, 1, 0))

	ds, err := repo.Deliveries(context.Background(), 42, 10, 5)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "Physics", ds[0].BookName)
	require.NotNil(t, ds[0].BookSemester)
	assert.Equal(t, 2, *ds[0].BookSemester)
	assert.Nil(t, ds[0].BookStream)
	assert.Equal(t, 1, ds[0].IsNCERT)
}

func TestVendorDailySales(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectQuery(`GROUP BY DATE\(logged_on\)`).WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"day", "total_vevsa_commission", "total_sales"}).
			AddRow("2026-03-01", 50.0, 600.0).
			AddRow("2026-03-02", 10.5, 120.0))

	sales, err := repo.DailySales(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, sales, 2)
	assert.Equal(t, "2026-03-02", sales[1].Date)
	assert.InDelta(t, 10.5, sales[1].TotalCommission, 0.001)
}

func TestVendorSearch(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		wantID      int64
		wantPattern string
	}{
		{name: "numeric key", key: "42", wantID: 42, wantPattern: "%42%"},
		{name: "text key", key: "sharma", wantID: -1, wantPattern: "%sharma%"},
		{name: "wildcards escaped", key: "50%_off", wantID: -1, wantPattern: `%50\%\_off%`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewVendorRepository(db, time.Second)

			mock.ExpectQuery(`vendor_name ILIKE \$2`).WithArgs(tt.wantID, tt.wantPattern).
				WillReturnRows(sqlmock.NewRows(vendorCols))

			vs, err := repo.Search(context.Background(), tt.key)
			require.NoError(t, err)
			assert.Empty(t, vs)
		})
	}
}

func TestVendorSetLogo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectExec(`UPDATE vendors SET logo_url`).WithArgs("https://cdn/logo.png", int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetLogo(context.Background(), 42, "https://cdn/logo.png"))
}

func TestVendorSetLogo_RowsAffectedError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectExec(`UPDATE vendors SET logo_url`).WithArgs("https://cdn/logo.png", int64(42)).
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost result")))

	err := repo.SetLogo(context.Background(), 42, "https://cdn/logo.png")
	require.ErrorIs(t, err, common.ErrStorage)
	assert.NotErrorIs(t, err, common.ErrNotFound)
}

func TestVendorSetLogo_UnknownVendor(t *testing.T) {
	db, mock := newMock(t)
	repo := NewVendorRepository(db, time.Second)

	mock.ExpectExec(`UPDATE vendors SET logo_url`).WithArgs("https://cdn/logo.png", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetLogo(context.Background(), 9, "https://cdn/logo.png")
	require.ErrorIs(t, err, common.ErrNotFound)
}
