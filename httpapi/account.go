package httpapi

import (
	"encoding/hex"
	"net/http"

	goAccount "github.com/MrEthical07/goAccount"
)

type createAccountRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Locale     string `json:"locale"`
	Service    string `json:"service"`
	RedirectTo string `json:"redirectTo"`
}

type sessionResponse struct {
	UID          string `json:"uid"`
	SessionToken string `json:"sessionToken"`
	Verified     bool   `json:"verified"`
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) error {
	var req createAccountRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	meta := callMetadata(req.Service, req.RedirectTo, req.Locale, r)

	res, err := h.engine.CreateAccount(r.Context(), goAccount.CreateAccountRequest{
		Email:    req.Email,
		Password: req.Password,
		Locale:   meta.Locale,
		Metadata: meta,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UID:          res.AccountID,
		SessionToken: res.Session.Token,
	})
	return nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	res, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		UID:          res.AccountID,
		SessionToken: res.Session.Token,
		Verified:     res.Verified,
	})
	return nil
}

func (h *Handler) destroySession(w http.ResponseWriter, r *http.Request) error {
	sess, err := sessionFrom(r)
	if err != nil {
		return err
	}
	if err := h.engine.DestroySession(r.Context(), sess.Token); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

type keysResponse struct {
	KA     string `json:"kA"`
	WrapKb string `json:"wrapKb"`
}

func (h *Handler) accountKeys(w http.ResponseWriter, r *http.Request) error {
	sess, err := sessionFrom(r)
	if err != nil {
		return err
	}
	keys, err := h.engine.AccountKeys(r.Context(), sess.AccountID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, keysResponse{
		KA:     hex.EncodeToString(keys.KA),
		WrapKb: hex.EncodeToString(keys.WrapKb),
	})
	return nil
}

type localeRequest struct {
	Locale string `json:"locale"`
}

func (h *Handler) updateLocale(w http.ResponseWriter, r *http.Request) error {
	sess, err := sessionFrom(r)
	if err != nil {
		return err
	}
	var req localeRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	locale, err := h.engine.UpdateLocale(r.Context(), sess.AccountID, req.Locale)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, localeRequest{Locale: locale})
	return nil
}
