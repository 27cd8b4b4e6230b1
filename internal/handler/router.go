package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/agriconnect/internal/middleware"
)

// NewRouter wires the public routes. metricsHandler may be nil.
func NewRouter(h *Handler, metricsHandler http.Handler, log *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(log), middleware.Logging(log))

	r.HandleFunc("/", h.Index).Methods("GET")
	r.HandleFunc("/signup", h.Signup).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/healthz", h.Health).Methods("GET")
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler).Methods("GET")
	}
	return r
}
