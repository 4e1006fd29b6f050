package handlers

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"soul_garden/internal/auth"
	"strconv"
	"strings"
)

var errForbidden = errors.New("token does not belong to this garden")

type AuthHandler struct {
	tokens     *auth.Tokens
	adminToken string
}

func NewAuthHandler(tokens *auth.Tokens, adminToken string) *AuthHandler {
	return &AuthHandler{tokens: tokens, adminToken: adminToken}
}

// Authorize checks that the request carries a dashboard token for userID,
// either as ?t= or as a Bearer header. Without a secret every garden is public.
func (h *AuthHandler) Authorize(r *http.Request, userID int64) error {
	if !h.tokens.Enabled() {
		return nil
	}

	token := r.URL.Query().Get("t")
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		token = strings.TrimSpace(bearer)
	}

	uid, err := h.tokens.Verify(token)
	if err != nil {
		return err
	}
	if uid != userID {
		return errForbidden
	}
	return nil
}

// RequireAdmin guards maintenance routes with the X-Admin-Token header. The
// routes do not exist at all while ADMIN_TOKEN is empty.
func (h *AuthHandler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	op := "handlers.RequireAdmin"

	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			http.NotFound(w, r)
			return
		}
		got := r.Header.Get("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
			log.Println("Rejected admin request from ", r.RemoteAddr, " in ", op)
			http.Error(w, "Forbidden.", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func userIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
