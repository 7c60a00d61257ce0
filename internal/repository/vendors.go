package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vevsa/books-auth/internal/common"
	"github.com/vevsa/books-auth/internal/database"
	"github.com/vevsa/books-auth/internal/models"
)

const vendorColumns = `vendor_id, vendor_name, vendor_email, vendor_phone, vendor_address,
	vendor_device_name, vendor_device_os, vendor_city, access_token, is_blocked, logo_url, created_on`

type VendorRepository struct {
	base
}

func NewVendorRepository(db *sql.DB, timeout time.Duration) *VendorRepository {
	return &VendorRepository{base: newBase(db, timeout)}
}

func scanVendor(row rowScanner) (models.Vendor, error) {
	var (
		v    models.Vendor
		logo sql.NullString
	)
	err := row.Scan(&v.ID, &v.Name, &v.Email, &v.Phone, &v.Address,
		&v.DeviceName, &v.DeviceOS, &v.City, &v.AccessToken, &v.IsBlocked, &logo, &v.CreatedOn)
	v.LogoURL = nullableString(logo)
	return v, err
}

var errVendorExists = fmt.Errorf("%w: A vendor already exists with this email/phone", common.ErrAlreadyExists)

// Create inserts a vendor after checking email and phone are unused.
func (r *VendorRepository) Create(ctx context.Context, v models.Vendor) (int64, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var dup bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM vendors WHERE vendor_email = $1 OR vendor_phone = $2)`,
		v.Email, v.Phone).Scan(&dup); err != nil {
		return 0, common.StorageErr(ctx, "check vendor duplicate", err)
	}
	if dup {
		return 0, errVendorExists
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO vendors (vendor_name, vendor_email, vendor_phone, vendor_address,
			vendor_device_name, vendor_device_os, vendor_city, access_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING vendor_id`,
		v.Name, v.Email, v.Phone, v.Address, v.DeviceName, v.DeviceOS, v.City, v.AccessToken).Scan(&id)
	if err != nil {
		if _, ok := database.UniqueViolation(err); ok {
			return 0, errVendorExists
		}
		return 0, common.StorageErr(ctx, "insert vendor", err)
	}
	return id, nil
}

func (r *VendorRepository) SetBlocked(ctx context.Context, vendorID int64, status int) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE vendors SET is_blocked = $1 WHERE vendor_id = $2`, status, vendorID)
	if err != nil {
		return common.StorageErr(ctx, "update vendor status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.StorageErr(ctx, "update vendor status", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: Invalid vendor id provided", common.ErrNotFound)
	}
	return nil
}

func (r *VendorRepository) Get(ctx context.Context, vendorID int64) (models.Vendor, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	v, err := scanVendor(r.db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE vendor_id = $1`, vendorID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vendor{}, fmt.Errorf("%w: Invalid vendor id provided", common.ErrNotFound)
	}
	if err != nil {
		return models.Vendor{}, common.StorageErr(ctx, "select vendor", err)
	}
	return v, nil
}

// Deliveries returns a page of the vendor's deliveries joined with books,
// newest first.
func (r *VendorRepository) Deliveries(ctx context.Context, vendorID int64, offset, limit int) ([]models.Delivery, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT d.delivery_id, d.book_id, d.book_price, d.mrp, d.vevsa_commission,
			b.book_name, b.book_stream, b.book_semester, b.type, b.book_author,
			b.book_category, b.publisher, d.logged_on,
			b.class, b.competition_name, b.is_ncert, b.is_guide
		FROM delivery_distribution d
		JOIN books b ON b.book_id = d.book_id
		WHERE d.vendor_id = $1
		ORDER BY d.logged_on DESC
		OFFSET $2 LIMIT $3`, vendorID, offset, limit)
	if err != nil {
		return nil, common.StorageErr(ctx, "list vendor deliveries", err)
	}
	defer rows.Close()

	out := []models.Delivery{}
	for rows.Next() {
		var (
			d                                       models.Delivery
			stream, author, category, pub, compName sql.NullString
			semester, typ, class                    sql.NullInt64
		)
		if err := rows.Scan(&d.DeliveryID, &d.BookID, &d.BookPrice, &d.MRP, &d.Commission,
			&d.BookName, &stream, &semester, &typ, &author,
			&category, &pub, &d.LoggedOn,
			&class, &compName, &d.IsNCERT, &d.IsGuide); err != nil {
			return nil, common.StorageErr(ctx, "list vendor deliveries", err)
		}
		d.BookStream = nullableString(stream)
		d.BookSemester = nullableInt(semester)
		d.Type = nullableInt(typ)
		d.BookAuthor = nullableString(author)
		d.BookCategory = nullableString(category)
		d.Publisher = nullableString(pub)
		d.Class = nullableInt(class)
		d.CompetitionName = nullableString(compName)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageErr(ctx, "list vendor deliveries", err)
	}
	return out, nil
}

// DailySales sums commission and mrp per delivery date.
func (r *VendorRepository) DailySales(ctx context.Context, vendorID int64) ([]models.DailySales, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT TO_CHAR(DATE(logged_on), 'YYYY-MM-DD') AS day,
			SUM(vevsa_commission) AS total_vevsa_commission,
			SUM(mrp) AS total_sales
		FROM delivery_distribution
		WHERE vendor_id = $1
		GROUP BY DATE(logged_on)
		ORDER BY DATE(logged_on)`, vendorID)
	if err != nil {
		return nil, common.StorageErr(ctx, "vendor sales", err)
	}
	defer rows.Close()

	out := []models.DailySales{}
	for rows.Next() {
		var s models.DailySales
		if err := rows.Scan(&s.Date, &s.TotalCommission, &s.TotalSales); err != nil {
			return nil, common.StorageErr(ctx, "vendor sales", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageErr(ctx, "vendor sales", err)
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches the vendor id exactly when key is numeric, and name, email
// or address case-insensitively as a substring.
func (r *VendorRepository) Search(ctx context.Context, key string) ([]models.Vendor, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	var id int64 = -1
	if n, err := strconv.ParseInt(key, 10, 64); err == nil {
		id = n
	}
	pattern := "%" + likeEscaper.Replace(key) + "%"

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+vendorColumns+` FROM vendors
		WHERE vendor_id = $1 OR vendor_name ILIKE $2 OR vendor_email ILIKE $2 OR vendor_address ILIKE $2
		ORDER BY vendor_id`, id, pattern)
	if err != nil {
		return nil, common.StorageErr(ctx, "search vendors", err)
	}
	defer rows.Close()

	out := []models.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, common.StorageErr(ctx, "search vendors", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageErr(ctx, "search vendors", err)
	}
	return out, nil
}

func (r *VendorRepository) SetLogo(ctx context.Context, vendorID int64, url string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE vendors SET logo_url = $1 WHERE vendor_id = $2`, url, vendorID)
	if err != nil {
		return common.StorageErr(ctx, "update vendor logo", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.StorageErr(ctx, "update vendor logo", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: Invalid vendor id provided", common.ErrNotFound)
	}
	return nil
}
