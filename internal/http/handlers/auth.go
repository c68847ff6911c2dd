package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"sitesmith/internal/middleware"
)

type tokenRequest struct {
	UserID string `json:"user_id"`
	Locale string `json:"locale"`
}

// IssueToken mints a short-lived HS256 token for the given user id. This is
// the development login surface; production identity federation sits in
// front of the API and is out of scope here.
func (a *App) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "user_id required")
		return
	}
	token, err := middleware.SignJWT(a.JWTSecret, middleware.TokenClaims{
		Sub:    userID,
		Locale: req.Locale,
		Exp:    time.Now().Add(24 * time.Hour).Unix(),
		Issuer: "sitesmith",
	})
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"token": token})
}
