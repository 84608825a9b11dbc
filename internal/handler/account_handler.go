package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/prn-tf/medstore/internal/domain"
	"github.com/prn-tf/medstore/internal/service"
)

// AccountHandler serves the administrator account management endpoints.
type AccountHandler struct {
	service *service.AuthService
	logger  zerolog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *service.AuthService, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		service: svc,
		logger:  logger.With().Str("handler", "accounts").Logger(),
	}
}

type createAccountRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"required,oneof=admin administrator cashier"`
	FullName string `json:"full_name" validate:"max=100"`
	Email    string `json:"email" validate:"omitempty,email,max=100"`
	Phone    string `json:"phone" validate:"max=32"`
}

type updateAccountRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Password *string `json:"password" validate:"omitempty,min=6,max=128"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin administrator cashier"`
	IsActive *bool   `json:"is_active"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Email    *string `json:"email" validate:"omitempty,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

type listAccountsResponse struct {
	Accounts []*domain.Account `json:"accounts"`
	Total    int64             `json:"total"`
	Offset   int               `json:"offset"`
	Limit    int               `json:"limit"`
	HasMore  bool              `json:"has_more"`
}

// List handles GET /api/v1/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	input := service.ListAccountsInput{
		Limit:  atoiDefault(query.Get("limit"), 0),
		Offset: atoiDefault(query.Get("offset"), 0),
	}
	if raw := query.Get("role"); raw != "" {
		role, err := domain.ParseRole(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		input.Role = &role
	}

	result, err := h.service.ListAccounts(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	accounts := result.Items
	if accounts == nil {
		accounts = []*domain.Account{}
	}
	writeJSON(w, http.StatusOK, listAccountsResponse{
		Accounts: accounts,
		Total:    result.Total,
		Offset:   result.Offset,
		Limit:    result.Limit,
		HasMore:  result.HasMore,
	})
}

// Create handles POST /api/v1/accounts.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.service.CreateAccount(r.Context(), service.CreateAccountInput{
		Username: req.Username,
		Password: req.Password,
		Role:     role,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// Get handles GET /api/v1/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Update handles PUT /api/v1/accounts/{id}.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateAccountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	input := service.UpdateAccountInput{
		Username: req.Username,
		Password: req.Password,
		IsActive: req.IsActive,
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	}
	if req.Role != nil {
		role, err := domain.ParseRole(*req.Role)
		if err != nil {
			writeError(w, err)
			return
		}
		input.Role = &role
	}

	account, err := h.service.UpdateAccount(r.Context(), id, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// Delete handles DELETE /api/v1/accounts/{id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.DeleteAccount)
}

// Activate handles POST /api/v1/accounts/{id}/activate.
func (h *AccountHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.ActivateAccount)
}

// Deactivate handles POST /api/v1/accounts/{id}/deactivate.
func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.DeactivateAccount)
}

func (h *AccountHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) error) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := op(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func accountID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ValidationErrors{{Field: "id", Message: "id must be a positive integer"}}.Err()
	}
	return id, nil
}

func atoiDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
