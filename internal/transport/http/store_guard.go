package http

import (
	"fmt"
	"net/http"

	apierrors "ridex/internal/errors"
	"ridex/internal/store"
)

// StoreStatus is the read-only view of the store connector
type StoreStatus interface {
	State() store.ConnectionState
	LastError() error
}

// RequireStore rejects requests with 503 while the store is not connected,
// so route groups that need the database fail fast instead of queueing.
func RequireStore(st StoreStatus, errHandler *apierrors.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if state := st.State(); !state.IsConnected() {
				err := apierrors.ErrNotConnected
				if cause := st.LastError(); cause != nil {
					err = fmt.Errorf("%w: %w", apierrors.ErrNotConnected, cause)
				}
				errHandler.HandleError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
