package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/agriconnect/internal/models"
)

const (
	msgMissingFields = "Username and password are required."
	msgInternal      = "Internal server error."
)

// Authenticator performs registration and login
type Authenticator interface {
	Register(ctx context.Context, username, password string) (models.Result, error)
	Login(ctx context.Context, username, password string) (models.Result, error)
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// credentials is the form body of /signup and /login
type credentials struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type Handler struct {
	auth     Authenticator
	store    Pinger
	log      *logrus.Logger
	validate *validator.Validate
}

func NewHandler(auth Authenticator, store Pinger, log *logrus.Logger) *Handler {
	return &Handler{
		auth:     auth,
		store:    store,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Signup handles account creation
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	res, err := h.auth.Register(r.Context(), creds.Username, creds.Password)
	h.respond(w, r, res, err)
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}
	res, err := h.auth.Login(r.Context(), creds.Username, creds.Password)
	h.respond(w, r, res, err)
}

// Health reports store connectivity
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.WithError(err).Error("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Index serves a placeholder page; the real interface is a separate client.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// decodeCredentials reads urlencoded or multipart form fields and writes a
// 422 failure when either is missing or empty.
func (h *Handler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, bool) {
	creds := credentials{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validate.Struct(creds); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, models.Failure(msgMissingFields))
		return credentials{}, false
	}
	return creds, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, res models.Result, err error) {
	if err != nil {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
		writeJSON(w, http.StatusInternalServerError, models.Failure(msgInternal))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>AgriConnect</title>
</head>
<body>
<h1>AgriConnect</h1>
<p>Accounts: POST /signup and POST /login with form fields username and password.</p>
</body>
</html>
`
