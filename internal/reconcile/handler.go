package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
	"github.com/odyssey-erp/ledgersync/internal/accounting/periods"
	"github.com/odyssey-erp/ledgersync/internal/inventory"
	"github.com/odyssey-erp/ledgersync/internal/platform/httpx"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

const (
	headerActorID  = "X-Actor-ID"
	headerPlatform = "X-Platform"
	defaultSource  = "api"
)

// OperationObserver receives the outcome of every lifecycle call.
type OperationObserver interface {
	ObserveOperation(kind, mode string, err error)
}

// Handler exposes the transaction lifecycle over JSON.
type Handler struct {
	service   *Service
	validator *validator.Validate
	logger    *slog.Logger
	observer  OperationObserver
}

// NewHandler constructs the HTTP handler.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, validator: validator.New(), logger: logger}
}

// WithObserver attaches an OperationObserver, typically the metrics registry.
func (h *Handler) WithObserver(o OperationObserver) *Handler {
	h.observer = o
	return h
}

func (h *Handler) observe(kind shared.Kind, mode string, err error) {
	if h.observer != nil {
		h.observer.ObserveOperation(string(kind), mode, err)
	}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/transactions/{kind}", func(r chi.Router) {
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/recover", h.recover)
		r.Get("/{id}/verify", h.verify)
	})
}

type caller struct {
	actorID  int64
	platform string
}

func (h *Handler) caller(r *http.Request) (caller, error) {
	c := caller{platform: strings.TrimSpace(r.Header.Get(headerPlatform))}
	if c.platform == "" {
		c.platform = defaultSource
	}
	if raw := strings.TrimSpace(r.Header.Get(headerActorID)); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return caller{}, fmt.Errorf("%w: invalid %s", httpx.ErrValidation, headerActorID)
		}
		c.actorID = id
	}
	return c, nil
}

func (h *Handler) route(r *http.Request, withID bool) (shared.Kind, int64, error) {
	kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", 0, err
	}
	if !withID {
		return kind, 0, nil
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: invalid id", httpx.ErrValidation)
	}
	return kind, id, nil
}

func (h *Handler) decode(r *http.Request) (SaveRequest, error) {
	var req SaveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return req, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return req, fmt.Errorf("%w: %s failed %s", httpx.ErrValidation, fe.Namespace(), fe.Tag())
		}
		return req, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return req, nil
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, false)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, true)
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, withID bool) {
	kind, id, err := h.route(r, withID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	req, err := h.decode(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	input := req.toInput(kind, id, c.actorID, c.platform)
	var result Result
	if withID {
		result, err = h.service.Update(r.Context(), input)
		h.observe(kind, ModeUpdate.String(), err)
	} else {
		result, err = h.service.Create(r.Context(), input)
		h.observe(kind, ModeCreate.String(), err)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !withID {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, newTransactionResponse(result))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.route(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.Delete(r.Context(), DeleteInput{Kind: kind, ID: id, ActorID: c.actorID, Platform: c.platform})
	h.observe(kind, "delete", err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTransactionResponse(result))
}

func (h *Handler) recover(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.route(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.Recover(r.Context(), RecoverInput{Kind: kind, ID: id, ActorID: c.actorID, Platform: c.platform})
	h.observe(kind, ModeRecover.String(), err)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newTransactionResponse(result))
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.route(r, true)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.service.Verify(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// fail maps domain errors onto the problem categories understood by httpx.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, periods.ErrPeriodLocked):
		err = fmt.Errorf("%w: %w", httpx.ErrLocked, err)
	case errors.Is(err, shared.ErrMissingReference):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, ErrDuplicateNumber):
		err = fmt.Errorf("%w: %w", httpx.ErrDuplicate, err)
	case errors.Is(err, ErrInvalidState), errors.Is(err, shared.ErrLockBusy):
		err = fmt.Errorf("%w: %w", httpx.ErrConflict, err)
	case errors.Is(err, ErrValidation), errors.Is(err, shared.ErrUnknownKind),
		errors.Is(err, inventory.ErrInvalidQuantity), errors.Is(err, journals.ErrNegativeTotal):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, httpx.ErrValidation):
	default:
		h.logger.Error("transaction request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
