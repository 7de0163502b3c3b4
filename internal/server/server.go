package server

import (
	"context"
	"net/http"

	"qtc-marketplace/internal/handler"
	"qtc-marketplace/internal/logger"
	qtcmw "qtc-marketplace/internal/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Cart     *handler.CartHandler
	Product  *handler.ProductHandler
	Checkout *handler.CheckoutHandler
	Payment  *handler.PaymentHandler
	Webhook  *handler.WebhookHandler
	Token    *handler.TokenHandler
	Quote    *handler.QuoteHandler
}

type Server struct {
	echo     *echo.Echo
	handlers Handlers
	log      *logger.Logger
	gatherer prometheus.Gatherer
}

func NewServer(handlers Handlers, log *logger.Logger, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = newRequestValidator()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(qtcmw.RequestContext(log))
	e.Use(qtcmw.RequestLogger(log))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, qtcmw.CartIDHeader},
		ExposeHeaders: []string{qtcmw.CartIDHeader},
	}))

	s := &Server{
		echo:     e,
		handlers: handlers,
		log:      log,
		gatherer: gatherer,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	if s.gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.echo.Group("/api")

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// -------- catalog --------
	api.GET("/products", s.handlers.Product.ListProducts)
	api.GET("/products/:id", s.handlers.Product.GetProduct)

	// -------- cart + checkout (per cart session) --------
	session := api.Group("", qtcmw.CartSession(s.log))
	session.GET("/cart", s.handlers.Cart.GetCart)
	session.POST("/cart/items", s.handlers.Cart.AddItem)
	session.PUT("/cart/items/:id", s.handlers.Cart.SetQuantity)
	session.DELETE("/cart/items/:id", s.handlers.Cart.RemoveItem)
	session.DELETE("/cart", s.handlers.Cart.Clear)
	session.POST("/checkout", s.handlers.Checkout.Checkout)

	api.GET("/checkout/return", s.handlers.Checkout.HandleReturn)
	api.GET("/orders/:id", s.handlers.Checkout.GetOrder)
	api.POST("/orders/:id/confirm", s.handlers.Checkout.ConfirmOrder)
	api.POST("/orders/:id/cancel", s.handlers.Checkout.CancelOrder)

	// -------- gateways --------
	payments := api.Group("/payments")
	payments.GET("", s.handlers.Payment.ListProviders)
	payments.GET("/nowpayments/currencies", s.handlers.Payment.NowPaymentsCurrencies)
	payments.POST("/:provider", s.handlers.Payment.CreatePayment)
	payments.GET("/:provider/:id", s.handlers.Payment.GetPaymentStatus)

	// -------- webhooks / callbacks --------
	webhooks := api.Group("/webhooks")
	webhooks.POST("/nowpayments", s.handlers.Webhook.NowPayments)
	webhooks.POST("/coingate", s.handlers.Webhook.CoinGate)
	webhooks.POST("/stripe", s.handlers.Webhook.Stripe)
	webhooks.POST("/bitpay", s.handlers.Webhook.BitPay)

	// -------- token dashboard --------
	token := api.Group("/token")
	token.GET("/info", s.handlers.Token.Info)
	token.GET("/balance/:wallet", s.handlers.Token.Balances)
	token.GET("/account/:wallet", s.handlers.Token.TokenAccount)
	token.POST("/transfer", s.handlers.Token.Transfer)
	token.POST("/transaction", s.handlers.Token.BuildTransaction)
	token.POST("/confirm", s.handlers.Token.Confirm)
	token.POST("/airdrop", s.handlers.Token.Airdrop)

	api.GET("/jupiter/quote", s.handlers.Quote.Quote)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
