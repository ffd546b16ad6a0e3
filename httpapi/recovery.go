package httpapi

import (
	"net/http"
)

type statusResponse struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

func (h *Handler) emailStatus(w http.ResponseWriter, r *http.Request) error {
	sess, err := sessionFrom(r)
	if err != nil {
		return err
	}
	status, err := h.engine.EmailStatus(r.Context(), sess.AccountID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, statusResponse{Email: status.Email, Verified: status.Verified})
	return nil
}

type metadataRequest struct {
	Service    string `json:"service"`
	RedirectTo string `json:"redirectTo"`
	Locale     string `json:"locale"`
}

func (h *Handler) resendVerifyCode(w http.ResponseWriter, r *http.Request) error {
	sess, err := sessionFrom(r)
	if err != nil {
		return err
	}
	var req metadataRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	meta := callMetadata(req.Service, req.RedirectTo, req.Locale, r)
	if _, err := h.engine.ResendVerificationCode(r.Context(), sess.AccountID, meta); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

type verifyEmailRequest struct {
	UID  string `json:"uid"`
	Code string `json:"code"`
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) error {
	var req verifyEmailRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.engine.VerifyEmail(r.Context(), req.UID, req.Code); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

type forgotRequest struct {
	Email      string `json:"email"`
	Service    string `json:"service"`
	RedirectTo string `json:"redirectTo"`
	Locale     string `json:"locale"`
}

type forgotResponse struct {
	PasswordForgotToken string `json:"passwordForgotToken"`
	Tries               int    `json:"tries"`
}

func (h *Handler) forgotSendCode(w http.ResponseWriter, r *http.Request) error {
	return h.forgot(w, r, false)
}

func (h *Handler) forgotResendCode(w http.ResponseWriter, r *http.Request) error {
	return h.forgot(w, r, true)
}

func (h *Handler) forgot(w http.ResponseWriter, r *http.Request, resend bool) error {
	var req forgotRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	meta := callMetadata(req.Service, req.RedirectTo, req.Locale, r)

	request := h.engine.RequestPasswordReset
	if resend {
		request = h.engine.ResendPasswordResetCode
	}
	token, err := request(r.Context(), req.Email, meta)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, forgotResponse{
		PasswordForgotToken: token.TokenID,
		Tries:               token.TriesRemaining,
	})
	return nil
}

type forgotVerifyRequest struct {
	PasswordForgotToken string `json:"passwordForgotToken"`
	Code                string `json:"code"`
}

func (h *Handler) forgotVerifyCode(w http.ResponseWriter, r *http.Request) error {
	var req forgotVerifyRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.engine.VerifyPasswordResetCode(r.Context(), req.PasswordForgotToken, req.Code); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

type forgotCompleteRequest struct {
	PasswordForgotToken string `json:"passwordForgotToken"`
	NewPassword         string `json:"newPassword"`
}

func (h *Handler) forgotComplete(w http.ResponseWriter, r *http.Request) error {
	var req forgotCompleteRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.engine.CompletePasswordReset(r.Context(), req.PasswordForgotToken, req.NewPassword); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

type forgotStatusResponse struct {
	Tries int    `json:"tries"`
	State string `json:"state"`
}

func (h *Handler) forgotStatus(w http.ResponseWriter, r *http.Request) error {
	token, err := h.engine.PasswordResetStatus(r.Context(), r.URL.Query().Get("passwordForgotToken"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, forgotStatusResponse{
		Tries: token.TriesRemaining,
		State: string(token.State),
	})
	return nil
}
