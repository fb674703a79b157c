// Package response writes the JSON bodies returned by the scoring API.
// Successful bodies wrap their payload in "data"; failures carry a "problem".
package response

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
)

// Problem describes why a request failed.
type Problem struct {
	Status  int    `json:"status"`
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

type dataBody struct {
	Data any `json:"data"`
}

type problemBody struct {
	Problem Problem `json:"problem"`
}

// JSON encodes v and writes it with the given status. The body is encoded
// before the header goes out, so a value that cannot be encoded (a NaN
// weight, for one) turns into a 500 instead of a truncated 200.
func JSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("Failed to encode %d response: %v", status, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(problemBody{Problem{
			Status:  http.StatusInternalServerError,
			Reason:  http.StatusText(http.StatusInternalServerError),
			Message: "response could not be encoded",
		}})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Success writes data with 200 OK.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, dataBody{Data: data})
}

// Error writes a problem body for err.
func Error(w http.ResponseWriter, status int, err error) {
	p := Problem{Status: status, Reason: http.StatusText(status)}
	if err != nil {
		p.Message = err.Error()
	}
	JSON(w, status, problemBody{Problem: p})
}

// BadRequest rejects a malformed request.
func BadRequest(w http.ResponseWriter, err error) { Error(w, http.StatusBadRequest, err) }

// NotFound reports an unknown feature or resource.
func NotFound(w http.ResponseWriter, err error) { Error(w, http.StatusNotFound, err) }
