package httpapi

import (
	"net/http"

	"github.com/suhasdevmane/Abacws/internal/datastore"
)

// statusFor maps datastore error kinds to HTTP statuses.
func statusFor(err error) int {
	switch datastore.KindOf(err) {
	case datastore.KindValidation:
		return http.StatusBadRequest
	case datastore.KindNotFound:
		return http.StatusNotFound
	case datastore.KindConflict, datastore.KindInUse:
		return http.StatusConflict
	case datastore.KindUnavailable:
		return http.StatusServiceUnavailable
	case datastore.KindQuery:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders every API error as {"error": message}. Driver messages
// are passed through verbatim so operators can debug their own table/column
// choices.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}
