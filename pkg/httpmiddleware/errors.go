package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// writeError writes the API error body {"code":..,"message":..}.
func writeError(w http.ResponseWriter, code int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
