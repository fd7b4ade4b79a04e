package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"redirect-proxy-go/internal/model"
)

// SecurityHeaders returns an Echo middleware that adds security headers
// and strips hop-by-hop headers from the inbound request, including any
// header the client listed in Connection.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header
			for _, v := range header.Values("Connection") {
				for _, name := range strings.Split(v, ",") {
					if name = strings.TrimSpace(name); name != "" {
						header.Del(name)
					}
				}
			}
			for _, h := range model.HopByHopHeaders {
				header.Del(h)
			}

			err := next(c)

			// Add security headers to response
			c.Response().Header().Set("X-Content-Type-Options", "nosniff")
			c.Response().Header().Set("X-Frame-Options", "DENY")

			return err
		}
	}
}
