package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	JWTSecret string
	RateLimit float64
	RateBurst int
}

func NewRouter(orderHandler *OrderHandler, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	limiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(cfg.RateLimit),
				Burst:     cfg.RateBurst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(context echo.Context) (string, error) {
			return context.RealIP(), nil
		},
		ErrorHandler: func(context echo.Context, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(context echo.Context, identifier string, err error) error {
			return context.JSON(429, map[string]string{"error": "rate limit exceeded"})
		},
	}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RateLimiterWithConfig(limiterConfig))

	g := e.Group("/api", jwtMiddleware(cfg.JWTSecret))
	g.POST("/orders", orderHandler.CreateOrder)
	g.GET("/orders/:id", orderHandler.GetOrder)
	g.PUT("/orders/:id/status", orderHandler.UpdateStatus)
	g.POST("/orders/:id/complete", orderHandler.CompleteOrder)
	g.GET("/orders/:id/transactions", orderHandler.ListTransactions)
	g.GET("/stores/:storeId/queue", orderHandler.ListQueue)
	g.GET("/stores/:storeId/inventory", orderHandler.GetStock)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]interface{}{
			"status":  "ok",
			"service": "cafe-order-service",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	return e
}
