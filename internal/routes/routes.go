package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/vevsa/books-auth/internal/handlers"
)

// Handlers bundles what SetupRoutes mounts. OTPLimit and Metrics are
// optional.
type Handlers struct {
	Users    *handlers.UserHandler
	Recovery *handlers.RecoveryHandler
	Vendors  *handlers.VendorHandler
	Stream   http.Handler
	Health   http.HandlerFunc

	// OTPLimit throttles the endpoints that send email.
	OTPLimit func(http.Handler) http.Handler
	Metrics  http.Handler
}

func passthrough(next http.Handler) http.Handler { return next }

func SetupRoutes(r chi.Router, h Handlers) {
	otpLimit := h.OTPLimit
	if otpLimit == nil {
		otpLimit = passthrough
	}

	r.Get("/health", h.Health)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// Key users
	r.Post("/register", h.Users.Register)
	r.Post("/login", h.Users.Login)
	r.Get("/users/search", h.Users.Search)
	r.Post("/trust", h.Users.RecordTrust)
	r.Get("/trust", h.Users.ListTrust)
	r.With(otpLimit).Post("/otp/send", h.Users.SendOTP)
	r.Post("/otp/verify", h.Users.VerifyOTP)

	// Recovery
	r.Route("/recovery", func(r chi.Router) {
		r.With(otpLimit).Post("/otp/send", h.Users.SendRecoveryOTP)
		r.Post("/otp/verify", h.Users.VerifyRecoveryOTP)

		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(30, time.Minute))
			r.Post("/initiate", h.Recovery.Initiate)
			r.Post("/trustee/submit", h.Recovery.Submit)
			r.Post("/finalize", h.Recovery.Finalize)
		})

		r.Get("/pending", h.Recovery.Pending)
		r.Get("/status", h.Recovery.Status)
		r.Get("/{requestID}/events", h.Recovery.Events)
	})
	r.Method(http.MethodGet, "/ws/recovery", h.Stream)

	// Vendors
	r.Route("/vendors", func(r chi.Router) {
		r.Post("/", h.Vendors.Create)
		r.Post("/block", h.Vendors.Block)
		r.Get("/search", h.Vendors.Search)
		r.Get("/{vendorID}", h.Vendors.Details)
		r.Get("/{vendorID}/sales", h.Vendors.Sales)
		r.Post("/{vendorID}/logo", h.Vendors.UploadLogo)
	})
}
