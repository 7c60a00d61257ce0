package models

import "time"

// Vendor account statuses.
const (
	VendorUnblocked = 0
	VendorBlocked   = 1
)

type Vendor struct {
	ID          int64     `json:"vendor_id"`
	Name        string    `json:"vendor_name"`
	Email       string    `json:"vendor_email"`
	Phone       string    `json:"vendor_phone"`
	Address     string    `json:"vendor_address"`
	DeviceName  string    `json:"vendor_device_name"`
	DeviceOS    string    `json:"vendor_device_os"`
	City        int       `json:"vendor_city"`
	AccessToken string    `json:"-"`
	IsBlocked   int       `json:"is_blocked"`
	LogoURL     *string   `json:"logo_url,omitempty"`
	CreatedOn   time.Time `json:"created_on"`
}

// Delivery is a delivered book joined with its catalogue entry.
type Delivery struct {
	DeliveryID      int64     `json:"delivery_id"`
	BookID          int64     `json:"book_id"`
	BookPrice       float64   `json:"book_price"`
	MRP             float64   `json:"mrp"`
	Commission      float64   `json:"vevsa_commission"`
	BookName        string    `json:"book_name"`
	BookStream      *string   `json:"book_stream"`
	BookSemester    *int      `json:"book_semester"`
	Type            *int      `json:"type"`
	BookAuthor      *string   `json:"book_author"`
	BookCategory    *string   `json:"book_category"`
	Publisher       *string   `json:"publisher"`
	LoggedOn        time.Time `json:"logged_on"`
	Class           *int      `json:"class"`
	CompetitionName *string   `json:"competition_name"`
	IsNCERT         int       `json:"is_ncert"`
	IsGuide         int       `json:"is_guide"`
}

type VendorDetails struct {
	Vendor
	RecentDeliveries []Delivery `json:"recent_deliveries"`
}

// DailySales aggregates one vendor's deliveries for a calendar day.
type DailySales struct {
	Date            string  `json:"logged_on"`
	TotalCommission float64 `json:"total_vevsa_commission"`
	TotalSales      float64 `json:"total_sales"`
}
