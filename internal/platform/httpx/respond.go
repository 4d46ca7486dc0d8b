// Package httpx menulis respons JSON dan dokumen problem RFC7807.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// MaxBodyBytes membatasi ukuran body JSON yang diterima.
const MaxBodyBytes = 1 << 20

// ProblemDetail adalah dokumen application/problem+json.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Field  string `json:"field,omitempty"`
}

// JSON menulis data sebagai application/json.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, "application/json", status, data)
}

// Problem menulis problem sederhana tanpa field.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	WriteProblem(w, ProblemDetail{Title: title, Status: status, Detail: detail})
}

// WriteProblem menulis problem lengkap. Status nol dianggap 500.
func WriteProblem(w http.ResponseWriter, problem ProblemDetail) {
	if problem.Status == 0 {
		problem.Status = http.StatusInternalServerError
	}
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	write(w, "application/problem+json", problem.Status, problem)
}

func write(w http.ResponseWriter, contentType string, status int, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON membaca satu objek JSON ke target. Field tak dikenal, data
// sisa setelah objek, dan body di atas MaxBodyBytes ditolak sebagai
// kesalahan validasi pada field "body".
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.Invalid("body", "request body is empty")
		}
		return shared.Invalid("body", "malformed json: "+err.Error())
	}
	if dec.More() {
		return shared.Invalid("body", "unexpected data after json object")
	}
	return nil
}
