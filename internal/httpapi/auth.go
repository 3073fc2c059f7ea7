package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

type contextKey int

const userIDKey contextKey = iota

// userID returns the authenticated user id stored by Authenticate.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// hashAPIKey computes the peppered HMAC-SHA256 hash under which API keys are
// stored. Only the hash ever touches the database.
func hashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the X-API-Key header to a user identity. The key is
// hashed before lookup and the stored hash is compared in constant time.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key")
			return
		}

		hash := hashAPIKey(h.pepper, key)
		info, err := h.apikeys.FindByHash(r.Context(), hash)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}

		if !hmac.Equal([]byte(hash), []byte(info.KeyHash)) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, info.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticateOps guards the fulfillment endpoints with the static ops key.
func (h *Handler) AuthenticateOps(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Ops-Key")
		if key == "" || !hmac.Equal([]byte(key), []byte(h.opsKey)) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid ops key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
