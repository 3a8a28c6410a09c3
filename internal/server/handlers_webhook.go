package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/apura-ai/apura/internal/model"
)

// HandleVerifyWebhook handles GET /webhook, the Meta subscription
// handshake: echo hub.challenge when the verify token matches.
func (h *Handlers) HandleVerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")

	if mode != "subscribe" || h.verifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) != 1 {
		h.logger.WarnContext(r.Context(), "webhook verification rejected", "mode", mode)
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "verification failed")
		return
	}

	// Meta expects the raw challenge string back, not a JSON envelope.
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

// HandleWebhook handles POST /webhook. Every runnable submission in the
// payload is admitted through the engine; the platform gets its 200 as
// soon as scheduling is done, never waiting on pipeline stages.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
		return
	}

	if !h.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		h.logger.WarnContext(r.Context(), "webhook signature mismatch")
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "invalid payload signature")
		return
	}

	var payload model.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "malformed webhook payload")
		return
	}

	subs := payload.Submissions()
	accepted := 0
	for _, sub := range subs {
		admitted, err := h.engine.Submit(r.Context(), sub.Variant, sub.Payload)
		if err != nil {
			// A failed admit must not fail the batch; the platform would
			// redeliver everything, duplicates included.
			h.logger.ErrorContext(r.Context(), "submission not admitted",
				"variant", string(sub.Variant),
				"key", sub.Key(),
				"error", err,
			)
			continue
		}
		if admitted {
			accepted++
		}
	}

	writeJSON(w, r, http.StatusOK, model.WebhookAck{
		Received: len(subs),
		Accepted: accepted,
	})
}

// verifySignature checks the X-Hub-Signature-256 header against the raw
// body. An empty app secret disables the check (local development).
func (h *Handlers) verifySignature(header string, body []byte) bool {
	if h.appSecret == "" {
		return true
	}
	hexDigest, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(hexDigest)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
