package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"labslot/internal/bookings/service"
	"labslot/internal/bookings/validator"
	apperrors "labslot/pkg/errors"
	httputil "labslot/pkg/http"
	"labslot/pkg/interval"
	"labslot/pkg/logger"
	"labslot/pkg/middleware"
	"labslot/pkg/model"
	"labslot/pkg/sanitizer"

	"github.com/julienschmidt/httprouter"
)

type BookingHandler struct {
	service   service.BookingService
	validator *validator.BookingValidator
	log       *logger.Logger
}

func NewBookingHandler(service service.BookingService, validator *validator.BookingValidator, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service:   service,
		validator: validator,
		log:       log,
	}
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	var req model.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Create", invalidBody(err))
		return
	}
	if req.UserID == "" {
		req.UserID = actor.ID
	}

	iv, err := h.validator.ValidateRequest(&req)
	if err != nil {
		h.writeError(w, "Create", validationError(err))
		return
	}

	booking, err := h.service.Request(r.Context(), service.RequestInput{
		ResourceID: req.ResourceID,
		UserID:     req.UserID,
		Interval:   iv,
		Notes:      req.Notes,
	}, actor)
	if err != nil {
		h.writeError(w, "Create", err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetByID(r.Context(), ps.ByName("id"))
	if err != nil {
		h.writeError(w, "GetByID", err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Approve(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := actorFrom(r)
	if err != nil {
		h.writeError(w, "Approve", err)
		return
	}

	booking, err := h.service.Approve(r.Context(), ps.ByName("id"), actor)
	h.writeDecision(w, "Approve", booking, err)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, decision, err := h.decisionFrom(r)
	if err != nil {
		h.writeError(w, "Reject", err)
		return
	}

	booking, err := h.service.Reject(r.Context(), ps.ByName("id"), actor, decision.Reason)
	h.writeDecision(w, "Reject", booking, err)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, decision, err := h.decisionFrom(r)
	if err != nil {
		h.writeError(w, "Cancel", err)
		return
	}

	booking, err := h.service.Cancel(r.Context(), ps.ByName("id"), actor, decision.Reason)
	h.writeDecision(w, "Cancel", booking, err)
}

func (h *BookingHandler) ListByResource(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		h.writeError(w, "ListByResource", err)
		return
	}

	var status model.BookingStatus
	if s := r.URL.Query().Get("status"); s != "" {
		parsed, ok := model.ParseBookingStatus(s)
		if !ok {
			h.writeError(w, "ListByResource", apperrors.InvalidInput("invalid status parameter: "+s))
			return
		}
		status = parsed
	}

	bookings, total, err := h.service.ListByResource(r.Context(), ps.ByName("id"), status, limit, offset)
	if err != nil {
		h.writeError(w, "ListByResource", err)
		return
	}

	if err := httputil.WritePaginated(w, bookings, total, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "ListByResource", "operation", "WritePaginated", "error", err)
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.POST("/api/v1/bookings/id/:id/approve", h.Approve)
	router.POST("/api/v1/bookings/id/:id/reject", h.Reject)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.GET("/api/v1/resources/:id/bookings", h.ListByResource)
}

// decisionFrom reads the caller and the optional {"reason": ...} body.
func (h *BookingHandler) decisionFrom(r *http.Request) (model.Actor, model.BookingDecision, error) {
	var decision model.BookingDecision

	actor, err := actorFrom(r)
	if err != nil {
		return actor, decision, err
	}

	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil && !errors.Is(err, io.EOF) {
		return actor, decision, invalidBody(err)
	}
	if err := h.validator.ValidateDecision(&decision); err != nil {
		return actor, decision, validationError(err)
	}
	return actor, decision, nil
}

func (h *BookingHandler) writeDecision(w http.ResponseWriter, handler string, booking *model.Booking, err error) {
	if err != nil {
		h.writeError(w, handler, err)
		return
	}
	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) writeError(w http.ResponseWriter, handler string, err error) {
	if !apperrors.IsAppError(err) {
		h.log.Error("unexpected error", "handler", handler, "error", err)
	}
	if writeErr := httputil.WriteError(w, err); writeErr != nil {
		h.log.Error("failed to write error response", "handler", handler, "operation", "WriteError", "error", writeErr)
	}
}

func actorFrom(r *http.Request) (model.Actor, error) {
	id := sanitizer.SanitizeIdentifier(middleware.UserID(r))
	if id == "" {
		return model.Actor{}, apperrors.InvalidInput(middleware.HeaderUserID + " header is required")
	}
	return model.HumanActor(id, sanitizer.SanitizeDisplayName(middleware.UserName(r))), nil
}

func invalidBody(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return apperrors.New(apperrors.CodeBadRequest, "Request body too large", http.StatusRequestEntityTooLarge)
	}
	return apperrors.InvalidInput("Invalid request body")
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation("Invalid booking request", verrs.Details())
	}
	if errors.Is(err, interval.ErrInvalidInterval) {
		return apperrors.InvalidInterval("start_time must be before end_time")
	}
	return apperrors.InvalidInput(err.Error())
}
