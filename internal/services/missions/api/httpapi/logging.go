package httpapi

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// maxLogLine bounds request log lines, response excerpt included.
const maxLogLine = 80

// LogRequests logs one line per request: method, path, status, latency and
// the start of the JSON response.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/mcp") {
			return
		}
		log.Print(formatLogLine(r.Method, r.URL.Path, rec.status, time.Since(start), rec.excerpt()))
	})
}

func formatLogLine(method, path string, status int, elapsed time.Duration, body string) string {
	line := fmt.Sprintf("%s %s %d in %dms", method, path, status, elapsed.Milliseconds())
	if body != "" {
		line += " :: " + body
	}
	if utf8.RuneCountInString(line) > maxLogLine {
		runes := []rune(line)
		line = string(runes[:maxLogLine-1]) + "…"
	}
	return line
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	head   bytes.Buffer
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if strings.HasPrefix(r.Header().Get("Content-Type"), "application/json") {
		if room := maxLogLine - r.head.Len(); room > 0 {
			r.head.Write(p[:min(room, len(p))])
		}
	}
	return r.ResponseWriter.Write(p)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) excerpt() string {
	return strings.TrimSpace(strings.ToValidUTF8(r.head.String(), ""))
}
