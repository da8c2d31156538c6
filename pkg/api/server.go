/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package api serves the poller's HTTP surface: the reading stream,
// register quarantine management and loop status.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httputil "github.com/carverauto/modbus-poller/pkg/http"
	"github.com/carverauto/modbus-poller/pkg/logger"
	"github.com/carverauto/modbus-poller/pkg/poller"
	"github.com/carverauto/modbus-poller/pkg/version"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// UnhealthyRegister is one entry of the quarantine listing.
type UnhealthyRegister struct {
	RegisterID string `json:"register_id"`
	Failures   int    `json:"failures"`
}

// UnhealthyResponse lists quarantined registers.
type UnhealthyResponse struct {
	Threshold int                 `json:"threshold"`
	Registers []UnhealthyRegister `json:"registers"`
}

// StatusResponse describes running device loops.
type StatusResponse struct {
	PollerID    string                `json:"poller_id,omitempty"`
	Version     string                `json:"version"`
	Devices     []poller.DeviceStatus `json:"devices"`
	Subscribers int                   `json:"subscribers"`
	Quarantined int                   `json:"quarantined"`
}

// ReenableResponse answers a re-enable request.
type ReenableResponse struct {
	RegisterID string `json:"register_id"`
	Reenabled  bool   `json:"reenabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the HTTP API.
type Server struct {
	router   *mux.Router
	status   StatusProvider
	health   RegisterHealth
	stream   StreamHandler
	origins  []string
	pollerID string
	logger   logger.Logger
	registry *prometheus.Registry
}

type Option func(*Server)

// WithStream mounts the websocket stream at /api/stream.
func WithStream(h StreamHandler) Option {
	return func(s *Server) {
		s.stream = h
	}
}

// WithAllowedOrigins sets the CORS allow list.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithPollerID labels status responses.
func WithPollerID(id string) Option {
	return func(s *Server) {
		s.pollerID = id
	}
}

// NewServer builds the router.
func NewServer(status StatusProvider, health RegisterHealth, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		status:   status,
		health:   health,
		logger:   log,
		registry: prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registry.MustRegister(
		newCollector(status, health, s.stream),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	apiRouter := s.router.PathPrefix("/api").Subrouter()

	apiRouter.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/registers/unhealthy", s.getUnhealthyRegisters).Methods(http.MethodGet)
	apiRouter.HandleFunc("/registers/{id}/enable", s.enableRegister).Methods(http.MethodPost)

	if s.stream != nil {
		apiRouter.HandleFunc("/stream", s.stream.ServeWS).Methods(http.MethodGet)
	}
}

// Handler returns the router wrapped in the common middleware.
func (s *Server) Handler() http.Handler {
	return httputil.CommonMiddleware(s.router, s.origins, s.logger)
}

// Start serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", addr).Msg("Starting HTTP API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info().Msg("HTTP API stopped")

	return nil
}

func (*Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		PollerID:    s.pollerID,
		Version:     version.GetFullVersion(),
		Devices:     s.status.Status(),
		Quarantined: len(s.health.Unhealthy()),
	}

	if s.stream != nil {
		resp.Subscribers = s.stream.SubscriberCount()
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getUnhealthyRegisters(w http.ResponseWriter, _ *http.Request) {
	ids := s.health.Unhealthy()

	resp := UnhealthyResponse{
		Threshold: s.health.Threshold(),
		Registers: make([]UnhealthyRegister, 0, len(ids)),
	}

	for _, id := range ids {
		resp.Registers = append(resp.Registers, UnhealthyRegister{RegisterID: id, Failures: s.health.Failures(id)})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) enableRegister(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !s.health.Reenable(id) {
		s.writeJSON(w, http.StatusNotFound, errorResponse{Error: "register is not quarantined: " + id})

		return
	}

	s.logger.Info().Str("register_id", id).Msg("Register re-enabled through API")

	s.writeJSON(w, http.StatusOK, ReenableResponse{RegisterID: id, Reenabled: true})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}
