package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func CORS(origins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "X-Requested-With", DashboardSessionHeader, RequestIDHeader, APIKeyHeader},
		ExposeHeaders:    []string{DashboardSessionHeader, RequestIDHeader},
		AllowCredentials: true,
		// permits chrome-extension:// entries in origins
		AllowBrowserExtensions: true,
	})
}
