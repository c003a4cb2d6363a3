package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"finitefield.org/storefront/internal/mail"
	"finitefield.org/storefront/internal/platform/httpx"
	"finitefield.org/storefront/internal/platform/observability"
)

const (
	contactInvalidBody = "Invalid request body"
	contactSendFailed  = "Failed to send emails"
	contactInternal    = "Internal server error"
	contactSent        = "Emails sent successfully"
)

type contactResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
	ConfirmationID string `json:"confirmationId,omitempty"`
}

func writeContactError(w http.ResponseWriter, status int, message string) {
	httpx.WriteJSON(w, status, contactResponse{Success: false, Error: message})
}

func (h *StorefrontHandlers) submitContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)
	if h.contact == nil {
		logger.Error("contact submission received without a configured sender")
		writeContactError(w, http.StatusInternalServerError, contactInternal)
		return
	}

	body, err := readLimitedBody(r, h.maxBody)
	if err != nil {
		if errors.Is(err, errEmptyBody) || errors.Is(err, errBodyTooLarge) {
			writeContactError(w, http.StatusBadRequest, contactInvalidBody)
			return
		}
		logger.Error("read contact body", zap.Error(err))
		writeContactError(w, http.StatusInternalServerError, contactInternal)
		return
	}

	var form mail.ContactForm
	if err := json.Unmarshal(body, &form); err != nil {
		writeContactError(w, http.StatusBadRequest, contactInvalidBody)
		return
	}

	var validation *mail.ValidationError
	if err := mail.ValidateContact(form); errors.As(err, &validation) {
		writeContactError(w, http.StatusBadRequest, validation.Message)
		return
	}

	receipt, err := h.contact.Send(ctx, form)
	if err != nil {
		if errors.As(err, &validation) {
			writeContactError(w, http.StatusBadRequest, validation.Message)
			return
		}
		logger.Error("contact dispatch failed", zap.Error(err))
		writeContactError(w, http.StatusInternalServerError, contactSendFailed)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, contactResponse{
		Success:        true,
		Message:        contactSent,
		NotificationID: receipt.NotificationID,
		ConfirmationID: receipt.ConfirmationID,
	})
}
