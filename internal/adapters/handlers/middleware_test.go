package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iwtcode/cncService/internal/config"
	"github.com/iwtcode/cncService/internal/metrics"
	"github.com/iwtcode/cncService/internal/middleware/logging"
	"github.com/iwtcode/cncService/internal/middleware/swagger"
)

func TestLoggingMiddlewareCoversServiceRoutes(t *testing.T) {
	var out bytes.Buffer
	h := NewHandler(nil, metrics.NewMetrics(), logging.NewWriterLogger(&out, "INFO"))
	router := ProvideRouter(h, &config.AppConfig{GinMode: gin.TestMode}, &swagger.Config{Enabled: true, Path: "/swagger"})

	for _, path := range []string{"/metrics", "/swagger/doc.json"} {
		out.Reset()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		logged := out.String()
		assert.Contains(t, logged, "Request started", path)
		assert.Contains(t, logged, "path="+path, path)
		assert.Contains(t, logged, "Request completed", path)
		assert.Equal(t, 1, strings.Count(logged, "Request completed"), path)
	}
}
