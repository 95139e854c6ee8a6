package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/timmy/newsrec/internal/logger"
)

func TestLoggerTagsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	prev := logger.GetDefault()
	logger.SetDefaultLogger(logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf}))
	t.Cleanup(func() { logger.SetDefaultLogger(prev) })

	r := gin.New()
	r.Use(Logger())
	r.GET("/ping", func(c *gin.Context) {
		logger.CtxInfo(c.Request.Context(), "handling")
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
	}{
		{name: "client supplied", header: "req-42"},
		{name: "generated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			id := w.Header().Get(RequestIDHeader)
			if id == "" || (tt.header != "" && id != tt.header) {
				t.Fatalf("response request id = %q, want %q", id, tt.header)
			}

			lines := 0
			sc := bufio.NewScanner(&buf)
			for sc.Scan() {
				var line map[string]interface{}
				if err := json.Unmarshal(sc.Bytes(), &line); err != nil {
					t.Fatalf("decode %q: %v", sc.Text(), err)
				}
				if line[logger.FieldRequestID] != id || line[logger.FieldComponent] != "api" {
					t.Fatalf("log line = %v, want request_id %q", line, id)
				}
				lines++
			}
			if lines != 2 {
				t.Fatalf("got %d log lines, want handler and completion", lines)
			}
		})
	}
}
