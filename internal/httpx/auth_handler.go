package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
)

type AuthHandler struct {
	Auth   *auth.Service
	Engine *lifecycle.Service
	Log    *logrus.Logger
}

func (h *AuthHandler) Register(r chi.Router) {
	r.Post("/api/auth/login", h.adminLogin)
	r.Post("/api/users/register", h.register)
	r.Post("/api/users/login", h.login)
	r.Get("/api/users/profile", h.profile)
	r.Put("/api/users/profile", h.updateProfile)
	r.Put("/api/users/change-password", h.changePassword)
	r.Get("/api/users/orders", h.myOrders)
	r.Get("/api/users/orders/{id}", h.myOrder)
}

func (h *AuthHandler) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token, admin, err := h.Auth.LoginAdmin(ctx, req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "admin": admin})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
		Address  string `json:"address"`
		City     string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token, user, err := h.Auth.RegisterCustomer(ctx, req.Name, req.Email, req.Password, req.Phone, req.Address, req.City)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "token": token, "user": user})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	token, user, err := h.Auth.LoginCustomer(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": user})
}

func requireCustomer(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p := PrincipalFrom(r.Context())
	if !p.IsCustomer() {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "login required"})
		return p, false
	}
	return p, true
}

func (h *AuthHandler) profile(w http.ResponseWriter, r *http.Request) {
	p, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	u, err := h.Auth.GetProfile(ctx, p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	var req struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
		City    string `json:"city"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Auth.UpdateProfile(ctx, p.ID, req.Name, req.Phone, req.Address, req.City); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, p.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Engine.ListOrdersForCustomer(ctx, p.Email, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *AuthHandler) myOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := requireCustomer(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
