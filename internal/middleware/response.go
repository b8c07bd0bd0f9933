package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// responseRecorder remembers the status and size of a response. When body
// is set it also keeps a copy of what was written.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	bytes       int
	body        *bytes.Buffer
}

func newResponseRecorder(w http.ResponseWriter, captureBody bool) *responseRecorder {
	rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	if captureBody {
		rec.body = &bytes.Buffer{}
	}
	return rec
}

func (rec *responseRecorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.status = status
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *responseRecorder) Write(b []byte) (int, error) {
	rec.WriteHeader(http.StatusOK)
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	if rec.body != nil {
		rec.body.Write(b[:n])
	}
	return n, err
}

// graphQLErrorCount reports how many entries the top-level errors list of a
// GraphQL response holds. Bodies that are not JSON objects count as none.
func graphQLErrorCount(body []byte) int {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return 0
	}
	return len(payload.Errors)
}

// writeJSONError writes {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	body, _ := json.Marshal(map[string]string{"error": message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
