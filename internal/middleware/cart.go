package middleware

import (
	"fmt"
	"net/http"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CartIDHeader = "X-Cart-Id"
	CartCookie   = "qtc_cart"
	cartIDKey    = "cart_id"

	// MaxCartIDLength matches the cart_id columns of the cart and order tables.
	MaxCartIDLength = 64
)

// CartSession resolves the caller's cart id from the header or cookie and issues a new one when missing.
// A cart id stands in for one browser tab.
func CartSession(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cartID := c.Request().Header.Get(CartIDHeader)
			if len(cartID) > MaxCartIDLength {
				return apperr.Validation(fmt.Sprintf("%s must be at most %d characters", CartIDHeader, MaxCartIDLength))
			}
			if cartID == "" {
				// an oversized cookie is replaced with a fresh id
				if cookie, err := c.Cookie(CartCookie); err == nil && len(cookie.Value) <= MaxCartIDLength {
					cartID = cookie.Value
				}
			}
			if cartID == "" {
				cartID = uuid.NewString()
				c.SetCookie(&http.Cookie{
					Name:     CartCookie,
					Value:    cartID,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Expires:  time.Now().Add(7 * 24 * time.Hour),
				})
			}

			c.Set(cartIDKey, cartID)
			c.Response().Header().Set(CartIDHeader, cartID)

			req := c.Request()
			c.SetRequest(req.WithContext(log.WithCartID(req.Context(), cartID)))
			return next(c)
		}
	}
}

func CartID(c echo.Context) string {
	cartID, _ := c.Get(cartIDKey).(string)
	return cartID
}
