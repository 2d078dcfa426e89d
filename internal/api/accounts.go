package api

import (
	"net/http"

	"github.com/lalithlochan/bloodlink/internal/donation"
)

type signupBody struct {
	Fullname  string `json:"fullname"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Bloodtype string `json:"bloodtype"`
	Location  string `json:"location"`
	Usertype  string `json:"usertype"`
}

// Signup handles POST /api/auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var body signupBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, "Malformed JSON body")
		return
	}

	sess, err := h.accounts.Signup(r.Context(), donation.Signup{
		Fullname:  body.Fullname,
		Username:  body.Username,
		Password:  body.Password,
		Email:     body.Email,
		Phone:     body.Phone,
		Bloodtype: body.Bloodtype,
		Location:  body.Location,
		Usertype:  body.Usertype,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    sess.User,
		"token":   sess.Token,
	})
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if err := decode(r, &body); err != nil {
		writeBadRequest(w, "Malformed JSON body")
		return
	}

	sess, err := h.accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    sess.User,
		"token":   sess.Token,
	})
}
