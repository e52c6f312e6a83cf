package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Gin adapts a net/http middleware to Gin. The Gin chain continues only
// when the middleware calls its next handler; otherwise the middleware has
// answered the request itself and the chain is aborted.
func Gin(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		passed := false

		// Bridge handler to allow net/http middleware execution
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		if !passed {
			c.Abort()
		}
	}
}

// GinRequireToken guards a Gin route group with g.
func GinRequireToken(g *Guard) gin.HandlerFunc {
	return Gin(g.RequireToken)
}
