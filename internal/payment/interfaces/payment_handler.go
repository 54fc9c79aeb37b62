package interfaces

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/sebuszqo/PaymentMethods/internal/auth"
	"github.com/sebuszqo/PaymentMethods/internal/payment/domain"
	perrors "github.com/sebuszqo/PaymentMethods/internal/payment/errors"
)

const maxBodyBytes = 1 << 20

type RegistryInterface interface {
	List(ctx context.Context, ownerID string) ([]domain.PaymentMethod, error)
	Add(ctx context.Context, owner domain.Owner, token string) (*domain.PaymentMethod, error)
	SetDefault(ctx context.Context, ownerID string, methodID uuid.UUID) error
	Delete(ctx context.Context, ownerID string, methodID uuid.UUID) error
}

type addPaymentMethodRequest struct {
	Token string `json:"token"`
}

type PaymentHandler struct {
	registry     RegistryInterface
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
	log          *slog.Logger
}

func NewPaymentHandler(
	registry RegistryInterface,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
	log *slog.Logger,
) *PaymentHandler {
	if registry == nil || respondJSON == nil || respondError == nil {
		panic("Registry and response functions must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PaymentHandler{
		registry:     registry,
		respondJSON:  respondJSON,
		respondError: respondError,
		log:          log,
	}
}

func (h *PaymentHandler) GetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	methods, err := h.registry.List(r.Context(), owner.ID)
	if err != nil {
		h.handleError(w, r, err, "Failed to retrieve payment methods")
		return
	}

	h.respondJSON(w, http.StatusOK, methods)
}

func (h *PaymentHandler) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req addPaymentMethodRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	method, err := h.registry.Add(r.Context(), owner, req.Token)
	if err != nil {
		h.handleError(w, r, err, "Failed to add payment method")
		return
	}

	h.respondJSON(w, http.StatusOK, method)
}

func (h *PaymentHandler) SetDefaultPaymentMethod(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	methodID, ok := h.methodID(w, r)
	if !ok {
		return
	}

	if err := h.registry.SetDefault(r.Context(), owner.ID, methodID); err != nil {
		h.handleError(w, r, err, "Failed to set default payment method")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PaymentHandler) DeletePaymentMethod(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	methodID, ok := h.methodID(w, r)
	if !ok {
		return
	}

	if err := h.registry.Delete(r.Context(), owner.ID, methodID); err != nil {
		h.handleError(w, r, err, "Failed to delete payment method")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// methodID parses the {id} path value. An id that is not a UUID cannot name
// any method, so it is reported as not found.
func (h *PaymentHandler) methodID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Payment method not found")
		return uuid.Nil, false
	}
	return id, true
}

func (h *PaymentHandler) handleError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError {
		h.log.Error("payment method request failed",
			"method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	h.respondError(w, status, message)
}

func errorStatus(err error, fallback string) (int, string) {
	switch {
	case perrors.IsValidationError(err):
		return http.StatusBadRequest, err.Error()
	case perrors.IsNotFoundError(err):
		return http.StatusNotFound, "Payment method not found"
	case perrors.IsProcessorError(err):
		return http.StatusInternalServerError, "Payment processor request failed"
	default:
		return http.StatusInternalServerError, fallback
	}
}
