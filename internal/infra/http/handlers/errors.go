package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/xavierca1/immigration-crm/internal/usecase"
)

type ErrorResponse struct {
	Error     string                    `json:"error"`
	Message   string                    `json:"message"`
	Retryable bool                      `json:"retryable,omitempty"`
	Fields    []usecase.ValidationError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeErrorResponse(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

var domainStatus = map[string]int{
	usecase.CodeNotFound:          http.StatusNotFound,
	usecase.CodeForbidden:         http.StatusForbidden,
	usecase.CodeInvalidTransition: http.StatusConflict,
	usecase.CodeInvalidState:      http.StatusConflict,
	usecase.CodeConflict:          http.StatusConflict,
	usecase.CodeValidation:        http.StatusUnprocessableEntity,
	usecase.CodeInvalidAmount:     http.StatusUnprocessableEntity,
}

// writeUseCaseError renders a use case failure. Technical details stay in the log.
func writeUseCaseError(w http.ResponseWriter, err error) {
	var de *usecase.DomainError
	if errors.As(err, &de) {
		status, ok := domainStatus[de.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, ErrorResponse{
			Error:     de.Code,
			Message:   de.Message,
			Retryable: de.Retryable(),
			Fields:    de.Fields,
		})
		return
	}

	var te *usecase.TechnicalError
	if errors.As(err, &te) {
		log.Printf("❌ %s: %v", te.Code, err)
		writeErrorResponse(w, http.StatusInternalServerError, te.Code, "internal error, please retry later")
		return
	}

	log.Printf("❌ unexpected error: %v", err)
	writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error, please retry later")
}

// outcome labels a use case result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := usecase.ErrorCode(err); code != "" {
		return code
	}
	return "error"
}
