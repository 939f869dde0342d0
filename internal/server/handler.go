/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/veraison/go-cose"

	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/metric"
	"github.com/kentakayama/suit-storage/internal/suit"
)

const (
	maxRequestBodyBytes = 1 << 20

	contentTypeEnvelope = "application/suit-envelope+cose"
)

// Store is the part of the storage engine exposed over HTTP.
type Store interface {
	InstallEnvelope(classID uuid.UUID, envelope []byte) error
	InstalledEnvelope(classID uuid.UUID) (*model.InstalledEnvelope, error)
	InstalledClassIDs() ([]uuid.UUID, error)
	Report(index int) ([]byte, error)
}

type handler struct {
	store   Store
	keys    []*cose.Key
	metrics *metric.Metrics
	logger  *log.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

func newHandler(store Store, keys []*cose.Key, metrics *metric.Metrics, logger *log.Logger) (*handler, error) {
	if store == nil {
		return nil, errors.New("server: no store")
	}
	return &handler{
		store:   store,
		keys:    keys,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/manage/envelopes":
		if !allow(w, r, http.MethodPost) {
			return
		}
		h.installEnvelope(w, r)
	case path == "/api/envelopes":
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.listEnvelopes(w)
	case strings.HasPrefix(path, "/api/envelopes/"):
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.getEnvelope(w, strings.TrimPrefix(path, "/api/envelopes/"))
	case strings.HasPrefix(path, "/api/reports/"):
		if !allow(w, r, http.MethodGet) {
			return
		}
		h.getReport(w, strings.TrimPrefix(path, "/api/reports/"))
	case path == "/metrics" && h.metrics != nil:
		h.metrics.Handler().ServeHTTP(w, r)
	default:
		http.NotFound(w, r)
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch domain.Kind(err) {
	case domain.ErrNotFound, domain.ErrOutOfBounds:
		return http.StatusNotFound
	case domain.ErrInvalidArgument, domain.ErrCBORDecoding, domain.ErrDigestMismatch, domain.ErrUnsupported:
		return http.StatusBadRequest
	case domain.ErrIncorrectState, domain.ErrExists:
		return http.StatusConflict
	case domain.ErrSize:
		return http.StatusInsufficientStorage
	case domain.ErrHWNotReady:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *handler) installEnvelope(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != contentTypeEnvelope {
		h.logger.Printf("content type mismatch: expected %s, actual %v", contentTypeEnvelope, r.Header.Get("Content-Type"))
		http.Error(w, "This endpoint only accepts Content-Type: "+contentTypeEnvelope, http.StatusUnsupportedMediaType)
		return
	}

	classID, err := uuid.Parse(r.URL.Query().Get("class-id"))
	if err != nil {
		h.logger.Printf("invalid class-id %q: %v", r.URL.Query().Get("class-id"), err)
		http.Error(w, "class-id must be a UUID", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		h.logger.Printf("failed reading request body: %v", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if err := r.Body.Close(); err != nil {
		h.logger.Printf("failed closing request body: %v", err)
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if len(h.keys) > 0 {
		if err := h.authenticate(body); err != nil {
			h.logger.Printf("failed to authenticate the envelope for class %s: %v", classID, err)
			http.Error(w, "failed to authenticate SUIT Envelope", http.StatusBadRequest)
			return
		}
	}

	if err := h.store.InstallEnvelope(classID, body); err != nil {
		h.logger.Printf("failed to install the envelope for class %s: %v", classID, err)
		http.Error(w, "failed to install SUIT Envelope: "+domain.Kind(err).Error(), statusOf(err))
		return
	}

	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        []byte("OK"),
		contentType: "text/plain",
	})
}

// authenticate accepts the envelope if any trusted key verifies it.
func (h *handler) authenticate(body []byte) error {
	env, err := suit.ParseEnvelope(body)
	if err != nil {
		return err
	}
	err = suit.ErrSUITManifestNotAuthenticated
	for _, key := range h.keys {
		if err = env.Verify(key); err == nil {
			return nil
		}
	}
	return err
}

func (h *handler) listEnvelopes(w http.ResponseWriter) {
	ids, err := h.store.InstalledClassIDs()
	if err != nil {
		h.logger.Printf("failed to list installed envelopes: %v", err)
		http.Error(w, domain.Kind(err).Error(), statusOf(err))
		return
	}
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id.String())
		b.WriteByte('\n')
	}
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        []byte(b.String()),
		contentType: "text/plain",
	})
}

func (h *handler) getEnvelope(w http.ResponseWriter, rawID string) {
	classID, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, "class id must be a UUID", http.StatusBadRequest)
		return
	}
	ie, err := h.store.InstalledEnvelope(classID)
	if err != nil {
		if domain.Kind(err) != domain.ErrNotFound {
			h.logger.Printf("failed to read the envelope of class %s: %v", classID, err)
		}
		http.Error(w, domain.Kind(err).Error(), statusOf(err))
		return
	}
	w.Header().Set("X-Suit-Sequence-Number", strconv.FormatUint(ie.SequenceNumber, 10))
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        ie.Envelope,
		contentType: contentTypeEnvelope,
	})
}

func (h *handler) getReport(w http.ResponseWriter, rawIndex string) {
	index, err := strconv.Atoi(rawIndex)
	if err != nil {
		http.Error(w, "report index must be an integer", http.StatusBadRequest)
		return
	}
	report, err := h.store.Report(index)
	if err != nil {
		http.Error(w, domain.Kind(err).Error(), statusOf(err))
		return
	}
	h.writeResponse(w, responseSpec{
		status:      http.StatusOK,
		body:        report,
		contentType: "application/octet-stream",
	})
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Printf("failed writing response body: %v", err)
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
