// Package handler provides HTTP request handlers for KeyDesk.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yndnr/keydesk/internal/core/domain"
)

// maxRedeemBody caps the POST body of a redemption.
const maxRedeemBody = 4 << 10

// handleRedeem handles GET and POST /v1/keys/redeem.
//
// The key and the optional recipient_id come from the query string or,
// for POST, from a JSON body. The client address and User-Agent are
// recorded with the usage.
func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	key := query.Get("key")
	recipient := query.Get("recipient_id")
	if key == "" && r.Method == http.MethodPost {
		var req RedeemRequest
		body := http.MaxBytesReader(w, r.Body, maxRedeemBody)
		if err := json.NewDecoder(body).Decode(&req); err != nil && err != io.EOF {
			h.writeError(w, r, http.StatusBadRequest, domain.ErrInvalidArgument.Code, "invalid request body", nil)
			return
		}
		key = req.Key
		if recipient == "" {
			recipient = req.RecipientID
		}
	}
	key = domain.NormalizeKeyID(key)
	if key == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.ErrMissingArgument.Code, "key parameter is required", nil)
		return
	}

	usage := domain.UsageRecord{
		UsedAt:           time.Now().UnixMilli(),
		RecipientID:      strings.TrimSpace(recipient),
		OriginAddr:       ClientIP(r),
		ClientDescriptor: r.UserAgent(),
	}
	if err := h.keys.Redeem(r.Context(), key, usage); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, RedeemResponse{
		Key:        domain.MaskKey(key),
		RedeemedAt: time.UnixMilli(usage.UsedAt).UTC(),
	})
}
