package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/ShreyashF130/copit-backend/internal/engine"
	"github.com/ShreyashF130/copit-backend/internal/reconciler"
)

// verifyWebhook answers the chat provider's subscription handshake.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == s.cfg.VerifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(q.Get("hub.challenge")))
		return
	}
	respondError(w, http.StatusForbidden, "verification_failed", "verification failed")
}

// receiveMessage ingests one chat event. The upstream channel has
// fire-and-forget semantics and retries on non-200, so every outcome short
// of a transport failure acknowledges with 200.
func (s *Server) receiveMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Warn("webhook body read failed", "error", err)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ev, err := engine.Classify(body)
	if err != nil {
		s.logger.Warn("unclassifiable webhook delivery", "error", err)
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if ev != nil {
		s.engine.HandleEvent(r.Context(), ev)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// paymentWebhook feeds the reconciler. 400 is reserved for signature
// failures and unparseable bodies; duplicates and irrelevant events are
// intentionally-ignored successes.
func (s *Server) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "could not read body")
		return
	}

	signature := r.Header.Get("X-Razorpay-Signature")
	err = s.reconciler.ProcessWebhook(r.Context(), body, signature)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, reconciler.ErrBadSignature):
		s.logger.Warn("payment webhook signature rejected")
		respondError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
	case errors.Is(err, reconciler.ErrBadPayload):
		respondError(w, http.StatusBadRequest, "invalid_payload", "malformed webhook body")
	default:
		s.logger.Error("payment webhook processing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "processing failed")
	}
}
