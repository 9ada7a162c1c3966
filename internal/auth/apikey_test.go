package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(APIKeyMiddleware(key))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestAPIKeyMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		header string
		query  string
		want   int
	}{
		{"Disabled", "", "", "", http.StatusOK},
		{"Missing", "secret", "", "", http.StatusUnauthorized},
		{"Wrong", "secret", "nope", "", http.StatusForbidden},
		{"Valid", "secret", "secret", "", http.StatusOK},
		{"QueryParam", "secret", "", "secret", http.StatusOK},
		{"WrongQueryParam", "secret", "", "nope", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/ping"
			if tt.query != "" {
				target += "?" + queryName + "=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set(headerName, tt.header)
			}
			w := httptest.NewRecorder()
			newRouter(tt.key).ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
