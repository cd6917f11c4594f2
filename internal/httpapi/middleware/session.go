package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ads-dashboard/internal/dashboard"
)

const (
	DashboardSessionKey    = "dashboard_session"
	DashboardSessionHeader = "X-Dashboard-Session"
	DashboardSessionCookie = "dash_sid"
)

// DashboardSession resolves the caller's dashboard session id from the header or the
// cookie and mints a new one when neither holds a valid id. The id is echoed in both.
func DashboardSession(maxAge int) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(DashboardSessionHeader))
		if id == "" {
			id, _ = c.Cookie(DashboardSessionCookie)
		}
		if !dashboard.ValidSessionID(id) {
			id = dashboard.NewSessionID()
		}

		c.Set(DashboardSessionKey, id)
		c.Header(DashboardSessionHeader, id)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(DashboardSessionCookie, id, maxAge, "/", "", false, true)
		c.Next()
	}
}
