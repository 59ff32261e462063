package api

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/terra-clan/gigboard/internal/models"
)

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req models.InitiatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pay, err := s.engine.InitiatePayment(r.Context(), actor(r), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	status := http.StatusCreated
	if pay.Status == models.PaymentPending {
		status = http.StatusAccepted
	}
	respondJSON(w, status, pay)
}

func (s *Server) handleGetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.GetPaymentStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	pay, err := s.engine.VerifyPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, pay)
}

func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request) {
	pay, err := s.engine.ReceiptFor(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.receipts.Render(&buf, *pay); err != nil {
		slog.Error("failed to render receipt", "error", err, "payment_id", pay.ID)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to render receipt")
		return
	}

	w.Header().Set("Content-Type", s.receipts.ContentType())
	w.Header().Set("Content-Disposition", `inline; filename="receipt-`+pay.ID+`.txt"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
