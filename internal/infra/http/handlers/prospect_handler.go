package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xavierca1/immigration-crm/internal/entity"
	"github.com/xavierca1/immigration-crm/internal/infra/http/middleware"
	"github.com/xavierca1/immigration-crm/internal/usecase"
)

type ProspectHandler struct {
	Lifecycle *usecase.LifecycleUseCase
	Queries   *usecase.ListProspectsUseCase
}

func NewProspectHandler(lifecycle *usecase.LifecycleUseCase, queries *usecase.ListProspectsUseCase) *ProspectHandler {
	return &ProspectHandler{Lifecycle: lifecycle, Queries: queries}
}

func (h *ProspectHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	input := usecase.ListProspectsInput{
		Status:     q.Get("status"),
		AssignedTo: q.Get("assigned_to"),
		Search:     q.Get("q"),
		SortBy:     q.Get("sort"),
		Order:      strings.ToLower(q.Get("order")),
	}
	var err error
	if input.Limit, err = intParam(q.Get("limit")); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_QUERY", "limit must be an integer")
		return
	}
	if input.Offset, err = intParam(q.Get("offset")); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_QUERY", "offset must be an integer")
		return
	}

	out, err := h.Queries.List(r.Context(), actor, input)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProspectHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Queries.Stats(r.Context(), actor)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProspectHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	p, err := h.Queries.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	w.Header().Set("ETag", etag(p.Version))
	writeJSON(w, http.StatusOK, prospectDetail{
		Prospect:          p,
		AllowedOperations: usecase.AllowedOperations(actor.Role, p.Status),
	})
}

// prospectDetail is the record plus the actions the caller may take on it right now.
type prospectDetail struct {
	*entity.Prospect
	AllowedOperations []usecase.Operation `json:"allowed_operations"`
}

func (h *ProspectHandler) Assign(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, usecase.OpAssign)
}

func (h *ProspectHandler) Reassign(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, usecase.OpReassign)
}

func (h *ProspectHandler) assign(w http.ResponseWriter, r *http.Request, op usecase.Operation) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var input usecase.AssignInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.ProspectID = chi.URLParam(r, "id")
	if !applyIfMatch(w, r, &input.ExpectedVersion) {
		return
	}

	var p *entity.Prospect
	var err error
	if op == usecase.OpReassign {
		p, err = h.Lifecycle.Reassign(r.Context(), actor, input)
	} else {
		p, err = h.Lifecycle.Assign(r.Context(), actor, input)
	}
	h.respond(w, op, p, err)
}

func (h *ProspectHandler) AssignToConsultant(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var input usecase.AssignToConsultantInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.ProspectID = chi.URLParam(r, "id")
	// the header wins over idempotency_key in the body
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		input.IdempotencyKey = key
	}
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if !applyIfMatch(w, r, &input.ExpectedVersion) {
		return
	}

	p, err := h.Lifecycle.AssignToConsultant(r.Context(), actor, input)
	h.respond(w, usecase.OpAssignToConsultant, p, err)
}

func (h *ProspectHandler) AddConsultantNote(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var input usecase.AddConsultantNoteInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.ProspectID = chi.URLParam(r, "id")

	p, err := h.Lifecycle.AddConsultantNote(r.Context(), actor, input)
	h.respond(w, usecase.OpAddConsultantNote, p, err)
}

func (h *ProspectHandler) EnterConsultation(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, usecase.OpEnterConsultation)
}

func (h *ProspectHandler) Convert(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, usecase.OpConvert)
}

func (h *ProspectHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, usecase.OpArchive)
}

func (h *ProspectHandler) simpleTransition(w http.ResponseWriter, r *http.Request, op usecase.Operation) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var input usecase.TransitionInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.ProspectID = chi.URLParam(r, "id")
	if !applyIfMatch(w, r, &input.ExpectedVersion) {
		return
	}

	var p *entity.Prospect
	var err error
	switch op {
	case usecase.OpEnterConsultation:
		p, err = h.Lifecycle.EnterConsultation(r.Context(), actor, input)
	case usecase.OpConvert:
		p, err = h.Lifecycle.ConvertToClient(r.Context(), actor, input)
	default:
		p, err = h.Lifecycle.Archive(r.Context(), actor, input)
	}
	h.respond(w, op, p, err)
}

func (h *ProspectHandler) respond(w http.ResponseWriter, op usecase.Operation, p *entity.Prospect, err error) {
	middleware.RecordTransition(string(op), outcome(err))
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeProspect(w, http.StatusOK, p)
}

func writeProspect(w http.ResponseWriter, status int, p *entity.Prospect) {
	w.Header().Set("ETag", etag(p.Version))
	writeJSON(w, status, p)
}

func etag(version int64) string {
	return `"` + strconv.FormatInt(version, 10) + `"`
}

func requireActor(w http.ResponseWriter, r *http.Request) (entity.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		writeErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
	}
	return actor, ok
}

// decodeBody accepts an empty body for actions that carry no payload.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeDecodeError(w, err)
		return false
	}
	return true
}

const maxBodyBytes = 64 << 10

func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeErrorResponse(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeErrorResponse(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON body: "+err.Error())
}

// applyIfMatch lets an If-Match header carry the expected version; it wins over the body field.
func applyIfMatch(w http.ResponseWriter, r *http.Request, expected *int64) bool {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return true
	}
	raw = strings.TrimPrefix(raw, "W/")
	v, err := strconv.ParseInt(strings.Trim(raw, `"`), 10, 64)
	if err != nil || v <= 0 {
		writeErrorResponse(w, http.StatusBadRequest, "INVALID_IF_MATCH", "If-Match must carry the prospect version")
		return false
	}
	*expected = v
	return true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
