package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes: validation 400,
// auth 401, forbidden 403, not-found 404, business conflicts 409,
// sisanya 500 tanpa bocorin detail internal.
func writeError(w http.ResponseWriter, err error) {
	var ise *orders.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      ise.Error(),
			"product_id": ise.ProductID,
		})
	case errors.Is(err, orders.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrEmailTaken):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, orders.ErrProductNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrAlreadyProcessed), errors.Is(err, orders.ErrAlreadyCancelled),
		errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
