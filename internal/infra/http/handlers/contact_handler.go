package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xavierca1/immigration-crm/internal/usecase"
)

// ContactHandler serves the public contact form.
type ContactHandler struct {
	submitUC    *usecase.SubmitContactUseCase
	rateLimiter *RateLimiter
}

func NewContactHandler(submitUC *usecase.SubmitContactUseCase, limiter *RateLimiter) *ContactHandler {
	if limiter == nil {
		limiter = NewRateLimiter(10, time.Minute)
	}
	return &ContactHandler{
		submitUC:    submitUC,
		rateLimiter: limiter,
	}
}

func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.rateLimiter.Allow(getClientIP(r)) {
		w.Header().Set("Retry-After", "60")
		writeErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
		return
	}

	var input usecase.SubmitContactInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeDecodeError(w, err)
		return
	}

	p, err := h.submitUC.Execute(r.Context(), input)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}
	writeProspect(w, http.StatusCreated, p)
}

// getClientIP prefers the first proxy hop, then the socket address without its port.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
