package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

const flashCookie = "flash"

// Flash is a one-shot message shown on the next page render
type Flash struct {
	Kind string `json:"kind"` // "ok" | "err"
	Msg  string `json:"msg"`
}

// flashCodec signs flash cookies with HMAC-SHA256 so a tampered cookie is
// silently dropped instead of rendered.
type flashCodec struct {
	secret []byte
}

func newFlashCodec(secretKey string) *flashCodec {
	return &flashCodec{secret: []byte(secretKey)}
}

// Set stores a flash message for the next request
func (c *flashCodec) Set(w http.ResponseWriter, kind, msg string) {
	payload, err := json.Marshal(Flash{Kind: kind, Msg: msg})
	if err != nil {
		return
	}
	value := base64.RawURLEncoding.EncodeToString(payload)
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    value + "." + c.sign(value),
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60,
	})
}

// Pop reads and clears the pending flash message, if any
func (c *flashCodec) Pop(w http.ResponseWriter, r *http.Request) *Flash {
	cookie, err := r.Cookie(flashCookie)
	if err != nil {
		return nil
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})

	value, sig, found := strings.Cut(cookie.Value, ".")
	if !found || !hmac.Equal([]byte(sig), []byte(c.sign(value))) {
		return nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var f Flash
	if err := json.Unmarshal(payload, &f); err != nil {
		return nil
	}
	return &f
}

func (c *flashCodec) sign(value string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
