package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/erazemk/bazar/internal/assistant"
	"github.com/erazemk/bazar/internal/cache"
	"github.com/erazemk/bazar/internal/events"
)

// Config carries the dependencies shared by all handlers.
type Config struct {
	DB           *sql.DB
	JWTSecret    string
	EmailDomains []string
	// Cache is optional; nil serves listings straight from the database.
	Cache *cache.Listings
	// Events defaults to a LogPublisher.
	Events events.Publisher
	// Assistant is optional; without it chat messages answer 503.
	Assistant assistant.Completer
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	if cfg.Events == nil {
		cfg.Events = events.LogPublisher{}
	}
	fx := &effects{Events: cfg.Events, Cache: cfg.Cache}

	authHandler := &AuthHandler{DB: cfg.DB, JWTSecret: cfg.JWTSecret, EmailDomains: cfg.EmailDomains}
	usersHandler := &UsersHandler{DB: cfg.DB}
	reviewsHandler := &ReviewsHandler{DB: cfg.DB}
	itemsHandler := &ItemsHandler{DB: cfg.DB, Cache: cfg.Cache}
	ordersHandler := &OrdersHandler{DB: cfg.DB, fx: fx}
	cartHandler := &CartHandler{DB: cfg.DB, fx: fx}
	chatHandler := &ChatHandler{DB: cfg.DB, Assistant: cfg.Assistant}

	authMW := AuthMiddleware(cfg.JWTSecret, cfg.DB)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))

	r.Route("/api", func(r chi.Router) {
		// Public.
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Get("/items", itemsHandler.List)
		r.Get("/items/{id}", itemsHandler.Get)
		r.Get("/items/{id}/image", itemsHandler.GetImage)
		r.Get("/users/{id}", usersHandler.Profile)
		r.Get("/users/{id}/reviews", reviewsHandler.List)

		r.Group(func(r chi.Router) {
			r.Use(authMW)

			r.Post("/auth/logout", authHandler.Logout)

			r.Get("/users/me", usersHandler.Me)
			r.Patch("/users/me", usersHandler.UpdateMe)
			r.Put("/users/me/password", usersHandler.ChangePassword)

			r.Post("/users/{id}/reviews", reviewsHandler.Create)
			r.Patch("/reviews/{id}", reviewsHandler.Update)
			r.Delete("/reviews/{id}", reviewsHandler.Delete)

			r.Get("/items/mine", itemsHandler.Mine)
			r.Post("/items", itemsHandler.Create)
			r.Patch("/items/{id}", itemsHandler.Update)
			r.Delete("/items/{id}", itemsHandler.Delete)
			r.Put("/items/{id}/image", itemsHandler.UploadImage)

			r.Get("/cart", cartHandler.List)
			r.Post("/cart", cartHandler.Add)
			r.Delete("/cart", cartHandler.Clear)
			r.Delete("/cart/{itemId}", cartHandler.Remove)
			r.Post("/cart/checkout", cartHandler.Checkout)

			r.Post("/orders", ordersHandler.Create)
			r.Get("/orders/buyer", ordersHandler.ListBuyer)
			r.Get("/orders/seller", ordersHandler.ListSeller)
			r.Get("/orders/to-deliver", ordersHandler.ToDeliver)
			r.Get("/orders/{id}", ordersHandler.Get)
			r.Post("/orders/{id}/verify-otp", ordersHandler.VerifyOTP)
			r.Post("/orders/{id}/regenerate-otp", ordersHandler.RegenerateOTP)
			r.Post("/orders/{id}/cancel", ordersHandler.Cancel)

			r.Post("/chat/sessions", chatHandler.Open)
			r.Get("/chat/sessions", chatHandler.List)
			r.Get("/chat/sessions/{id}", chatHandler.Get)
			r.Post("/chat/sessions/{id}/messages", chatHandler.Send)
			r.Post("/chat/sessions/{id}/close", chatHandler.Close)
		})
	})

	return r
}
