package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ShreyashF130/copit-backend/internal/domain"
	"github.com/ShreyashF130/copit-backend/internal/repository"
	"github.com/ShreyashF130/copit-backend/internal/token"
)

type generateLinkRequest struct {
	ShopperID string `json:"shopper_id"`
}

// generateLink issues a fresh checkout token and returns the hand-off URL.
// The URL embeds only the token, never the shopper identity.
func (s *Server) generateLink(w http.ResponseWriter, r *http.Request) {
	var req generateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ShopperID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "shopper_id is required")
		return
	}
	tok := s.tokens.Issue(req.ShopperID)
	respondJSON(w, http.StatusOK, map[string]string{
		"url": fmt.Sprintf("%s/%s", s.cfg.CheckoutBaseURL, tok),
	})
}

type addressPayload struct {
	Pincode string `json:"pincode"`
	HouseNo string `json:"house_no"`
	Area    string `json:"area"`
	City    string `json:"city"`
}

// sessionData validates token liveness and returns what the address form
// needs: a masked identity and the saved address, if any.
func (s *Server) sessionData(w http.ResponseWriter, r *http.Request) {
	tok := chi.URLParam(r, "token")
	shopperID, err := s.tokens.Validate(tok)
	switch {
	case errors.Is(err, token.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "link invalid or used")
		return
	case errors.Is(err, token.ErrExpired):
		respondError(w, http.StatusBadRequest, "expired", "link expired")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal_error", "validation failed")
		return
	}

	var saved *addressPayload
	addr, err := s.repo.LatestAddress(r.Context(), shopperID)
	if err == nil {
		saved = &addressPayload{
			Pincode: addr.Pincode,
			HouseNo: addr.HouseNo,
			Area:    addr.Area,
			City:    addr.City,
		}
	} else if !errors.Is(err, repository.ErrAddressNotFound) {
		s.logger.Error("address lookup failed", "error", err)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"phone_masked":  maskIdentity(shopperID),
		"saved_address": saved,
	})
}

type confirmAddressRequest struct {
	Token   string         `json:"token"`
	Address addressPayload `json:"address"`
}

// confirmAddress consumes the token (single use: the consume is atomic
// with the validity check) and persists a new address row for the bound
// shopper. The redirect bounces the shopper back into the chat with the
// confirmation marker, which resumes the paused checkout.
func (s *Server) confirmAddress(w http.ResponseWriter, r *http.Request) {
	var req confirmAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}
	if req.Address.Pincode == "" {
		respondError(w, http.StatusBadRequest, "invalid_address", "pincode is required")
		return
	}

	shopperID, err := s.tokens.Consume(req.Token)
	switch {
	case errors.Is(err, token.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", "link invalid or used")
		return
	case errors.Is(err, token.ErrExpired):
		respondError(w, http.StatusBadRequest, "expired", "link expired")
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "internal_error", "validation failed")
		return
	}

	_, err = s.repo.CreateAddress(r.Context(), &domain.Address{
		ShopperID: shopperID,
		Pincode:   req.Address.Pincode,
		HouseNo:   req.Address.HouseNo,
		Area:      req.Address.Area,
		City:      req.Address.City,
	})
	if err != nil {
		s.logger.Error("address create failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "could not save address")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"redirect_url": fmt.Sprintf("%s?text=Address_Confirmed_for_%s", s.cfg.ChatDeepLink, req.Token),
	})
}

type verifyOrderRequest struct {
	OrderID  int64  `json:"order_id"`
	Decision string `json:"decision"`
}

// verifyOrder is the merchant's manual override for the manual-proof path.
func (s *Server) verifyOrder(w http.ResponseWriter, r *http.Request) {
	var req verifyOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "order_id is required")
		return
	}

	var err error
	switch req.Decision {
	case "approve":
		err = s.reconciler.Approve(r.Context(), req.OrderID)
	case "reject":
		err = s.reconciler.Reject(r.Context(), req.OrderID)
	default:
		respondError(w, http.StatusBadRequest, "invalid_decision", "decision must be approve or reject")
		return
	}
	if err != nil {
		respondError(w, http.StatusConflict, "not_applicable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"order_id": strconv.FormatInt(req.OrderID, 10),
		"decision": req.Decision,
	})
}

func maskIdentity(id string) string {
	if len(id) <= 4 {
		return "******"
	}
	return "******" + id[len(id)-4:]
}
