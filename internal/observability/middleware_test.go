package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/sshexec/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(buf *bytes.Buffer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zerolog.New(buf).Level(zerolog.InfoLevel)

	r := gin.New()
	r.Use(RequestID(logger), RequestLogger(logger), RequestMetricsMiddleware("mw-test"))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/mcp", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("inside handler")
		c.Status(http.StatusAccepted)
	})
	return r
}

func TestRequestIDAssignedAndPropagated(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	generated := rr.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Contains(t, buf.String(), `"request_id":"`+generated+`"`)
	assert.Contains(t, buf.String(), "inside handler")

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	req.Header.Set("Mcp-Session-Id", "sess-9")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"mcp_session":"sess-9"`)
}

func TestProbesLogAtDebug(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotContains(t, buf.String(), "http_request")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Contains(t, buf.String(), `"path":"unmatched"`)
	assert.Contains(t, buf.String(), `"status":404`)
}

func TestUnmatchedRoutesShareOneMetricLabel(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	r := newTestRouter(&buf)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", unmatchedPath, "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/a/1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/b/2", nil))
	after := testutil.ToFloat64(httpRequests.WithLabelValues("mw-test", "GET", unmatchedPath, "404"))
	assert.Equal(t, before+2, after)
}
