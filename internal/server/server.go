/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/metric"
)

// Server wires the HTTP listener and request handling stack.
type Server struct {
	cfg     config.ServerConfig
	handler *handler
	http    *http.Server
	logger  *log.Logger
}

// New constructs a Server serving store. metrics may be nil, in which case
// /metrics is not served.
func New(cfg config.ServerConfig, store Store, metrics *metric.Metrics) (*Server, error) {
	cfg = cfg.WithDefaults()
	logger := cfg.Logger

	keys, err := loadTrustedKeys(cfg.TrustedKeys)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		logger.Printf("no trusted keys configured, envelopes are installed without signature verification")
	}

	h, err := newHandler(store, keys, metrics, logger)
	if err != nil {
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		handler: h,
		http:    httpSrv,
		logger:  logger,
	}, nil
}

func loadTrustedKeys(paths []string) ([]*cose.Key, error) {
	keys := make([]*cose.Key, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read trusted key: %w", err)
		}
		var key cose.Key
		if err := cbor.Unmarshal(data, &key); err != nil {
			return nil, fmt.Errorf("failed to load trusted key %s: %w", path, err)
		}
		keys = append(keys, &key)
	}
	return keys, nil
}

// Handler returns the request handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe starts the HTTP server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	s.logger.Printf("Run SUIT storage server on %s.", s.http.Addr)

	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully takes down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
