package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/chatshop-io/chatshop/internal/domain/auth"
)

// APIKeyAuth authenticates admin requests via HMAC-SHA256 hashed API keys
// carried in the X-API-Key header. Only key hashes are stored, so a database
// leak does not expose usable keys.
type APIKeyAuth struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAPIKeyAuth creates an APIKeyAuth with the given repository and HMAC
// pepper.
func NewAPIKeyAuth(apikeys auth.Repository, pepper []byte) *APIKeyAuth {
	return &APIKeyAuth{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// Middleware rejects requests whose X-API-Key header does not resolve to a
// stored key hash.
func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, a.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := a.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already matched.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
