package cache

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const jsonContentType = "application/json; charset=utf-8"

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware serves GET responses from the cache and stores successful JSON
// responses. key maps a request to its cache key; an empty key skips caching.
func (c *Cache) Middleware(key func(*gin.Context) string, l *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}
		k := key(ctx)
		if k == "" {
			ctx.Next()
			return
		}

		if cached, found := c.Read(k); found {
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, jsonContentType, cached)
			ctx.Abort()
			return
		}

		ctx.Header("X-Cache", "MISS")
		writer := &responseWriter{
			ResponseWriter: ctx.Writer,
			body:           bytes.NewBuffer(nil),
		}
		ctx.Writer = writer

		ctx.Next()

		if ctx.Writer.Status() == http.StatusOK &&
			ctx.Writer.Header().Get("Content-Type") == jsonContentType {
			if err := c.Write(k, writer.body.Bytes()); err != nil {
				l.Warn("writing cache entry", zap.String("key", k), zap.Error(err))
			}
		}
	}
}
