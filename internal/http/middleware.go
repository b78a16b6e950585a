package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"studyvault/internal/logger"
	"studyvault/internal/services"
)

// multipartOverhead leaves room for form fields and boundaries around an
// upload of the maximum size.
const multipartOverhead = 1 << 20

const accountKey = "account"

var allowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:8080",
}

func CORS() gin.HandlerFunc {
	config := cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
	}
	return cors.New(config)
}

func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Error("request", kv...)
			return
		}
		log.Info("request", kv...)
	}
}

func MaxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// RequireAccount resolves the bearer token through the identity provider
// and stores the account on the context. With required=false a request
// without a token passes through anonymously.
func RequireAccount(idp services.IdentityProvider, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			if required {
				respondMessage(c, http.StatusUnauthorized, "missing bearer token")
				c.Abort()
				return
			}
			c.Next()
			return
		}

		acct, err := idp.Authenticate(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(err)
			respondError(c, statusFor(err), err)
			c.Abort()
			return
		}
		c.Set(accountKey, acct)
		c.Next()
	}
}

func accountFrom(c *gin.Context) (services.Account, bool) {
	v, ok := c.Get(accountKey)
	if !ok {
		return services.Account{}, false
	}
	acct, ok := v.(services.Account)
	return acct, ok
}
