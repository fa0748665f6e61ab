// Package router registers the HTTP API on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-inventory/internal/config"
	"github.com/iliyamo/cinema-seat-inventory/internal/handler"
	"github.com/iliyamo/cinema-seat-inventory/internal/middleware"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Inventory *handler.InventoryHandler
	Holds     *handler.HoldHandler
	Bookings  *handler.BookingHandler
}

// Options carries the auth and rate limit settings.  A nil Redis client
// disables rate limiting.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
}

// RegisterRoutes mounts the public, customer and show-owner endpoints.
// Middleware is attached per route so that groups sharing the /v1 prefix
// do not shadow each other's not-found handling.
func RegisterRoutes(e *echo.Echo, h Handlers, opts Options) {
	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1")

	// Anyone may look at the seat map.
	v1.GET("/shows/:id/seats", h.Inventory.SeatMap)

	auth := middleware.JWTAuth(opts.JWTSecret)
	limit := middleware.NewTokenBucket(opts.RateLimit, opts.Redis)
	customer := []echo.MiddlewareFunc{auth, middleware.RequireRole(middleware.RoleCustomer)}
	limited := append(append([]echo.MiddlewareFunc{}, customer...), limit)
	bookings := []echo.MiddlewareFunc{auth, middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin)}
	owners := []echo.MiddlewareFunc{auth, middleware.RequireRole(middleware.RoleOwner, middleware.RoleAdmin)}

	// ---- Inventory ----
	v1.POST("/shows/:id/inventory", h.Inventory.Initialize, owners...)

	// ---- Holds ----
	v1.POST("/shows/:id/holds", h.Holds.Create, limited...)
	v1.DELETE("/shows/:id/holds", h.Holds.ReleaseMine, customer...)
	v1.GET("/holds/:holdId", h.Holds.Get, customer...)
	v1.DELETE("/holds/:holdId", h.Holds.Release, customer...)

	// ---- Bookings ----
	v1.POST("/holds/:holdId/confirm", h.Bookings.Confirm, customer...)
	v1.POST("/holds/:holdId/checkout", h.Bookings.Checkout, limited...)
	v1.GET("/bookings", h.Bookings.List, customer...)
	v1.GET("/bookings/:id", h.Bookings.Get, bookings...)
	v1.DELETE("/bookings/:id", h.Bookings.Cancel, bookings...)
}
