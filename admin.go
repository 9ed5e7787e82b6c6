package visitgrid

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/visitgrid/analytics/templates"
	"github.com/eringen/visitgrid/internal/logging"
)

func (a *App) handleAdmin(c echo.Context) error {
	if IsAdmin(c) {
		return c.Redirect(http.StatusSeeOther, "/admin/analytics/")
	}
	return Render(c, templates.Login(false, CsrfToken(c)))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/admin/analytics/")
	}
	a.loginLimiter.Record(ip)
	logging.Ctx(c.Request().Context()).Warn().Str("ip", ip).Msg("failed admin login")
	return RenderStatus(c, http.StatusUnauthorized, templates.Login(true, CsrfToken(c)))
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}
