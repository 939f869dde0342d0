/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veraison/go-cose"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/domain/model"
	"github.com/kentakayama/suit-storage/internal/metric"
	"github.com/kentakayama/suit-storage/internal/nvm"
	"github.com/kentakayama/suit-storage/internal/storage"
	"github.com/kentakayama/suit-storage/internal/suit"
	"github.com/kentakayama/suit-storage/internal/suit/suittest"
)

var classApp = suit.ClassID(suit.VendorID("example.com"), "app")

type fixture struct {
	store   *storage.Storage
	handler http.Handler
}

func newFixture(t *testing.T, keys ...*cose.Key) *fixture {
	t.Helper()
	logger := log.New(io.Discard, "", 0)

	metrics := metric.New()
	store := storage.New(nvm.NewMemory(0x20000, 0x100, 4), config.StorageConfig{
		Partition:        model.Region{Address: 0x10000, Size: 0x10000},
		EnvelopeSlots:    2,
		EnvelopeBankSize: 0x400,
		Reports:          2,
		ReportCapacity:   0x80,
		Logger:           logger,
	}.WithDefaults(), metrics)
	require.NoError(t, store.Init())

	dir := t.TempDir()
	cfg := config.ServerConfig{Logger: logger}
	for i, key := range keys {
		data, err := cbor.Marshal(key)
		require.NoError(t, err)
		path := filepath.Join(dir, "key"+string(rune('0'+i))+".cbor")
		require.NoError(t, os.WriteFile(path, data, 0o600))
		cfg.TrustedKeys = append(cfg.TrustedKeys, path)
	}

	srv, err := New(cfg, store, metrics)
	require.NoError(t, err)
	return &fixture{store: store, handler: srv.Handler()}
}

func (f *fixture) do(method, target, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) install(classID uuid.UUID, envelope []byte) *httptest.ResponseRecorder {
	return f.do(http.MethodPost, "/api/manage/envelopes?class-id="+classID.String(), contentTypeEnvelope, envelope)
}

func TestInstallAndGetEnvelope(t *testing.T) {
	f := newFixture(t)
	envelope := suittest.Envelope(t, suittest.Options{SequenceNumber: 3})

	rec := f.install(classApp, envelope)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/envelopes/"+classApp.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeEnvelope, rec.Header().Get("Content-Type"))
	assert.Equal(t, "3", rec.Header().Get("X-Suit-Sequence-Number"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, envelope, rec.Body.Bytes())

	rec = f.do(http.MethodGet, "/api/envelopes", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, classApp.String()+"\n", rec.Body.String())
}

func TestInstallEnvelope_BadRequests(t *testing.T) {
	f := newFixture(t)
	envelope := suittest.Envelope(t, suittest.Options{SequenceNumber: 1})

	rec := f.do(http.MethodPost, "/api/manage/envelopes?class-id="+classApp.String(), "application/cbor", envelope)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = f.do(http.MethodPost, "/api/manage/envelopes?class-id=app", contentTypeEnvelope, envelope)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.install(classApp, []byte{0x01})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.install(classApp, suittest.Envelope(t, suittest.Options{SequenceNumber: 1, CorruptDigest: true}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/manage/envelopes", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestInstallEnvelope_TooLarge(t *testing.T) {
	f := newFixture(t)
	envelope := suittest.Envelope(t, suittest.Options{SequenceNumber: 1})
	body := append(envelope, bytes.Repeat([]byte{0x00}, maxRequestBodyBytes)...)

	rec := f.install(classApp, body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = f.do(http.MethodGet, "/api/envelopes/"+classApp.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.install(classApp, envelope)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestInstallEnvelope_NoFreeSlot(t *testing.T) {
	f := newFixture(t)
	for _, class := range []string{"app", "radio", "sensor"} {
		rec := f.install(suit.ClassID(suit.VendorID("example.com"), class), suittest.Envelope(t, suittest.Options{SequenceNumber: 1}))
		if class == "sensor" {
			assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
			continue
		}
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestInstallEnvelope_TrustedKeys(t *testing.T) {
	signer, key := suittest.NewKey(t, []byte("kid-1"))
	otherSigner, _ := suittest.NewKey(t, []byte("kid-1"))
	f := newFixture(t, key)

	rec := f.install(classApp, suittest.Envelope(t, suittest.Options{SequenceNumber: 1}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.install(classApp, suittest.Envelope(t, suittest.Options{
		SequenceNumber: 1,
		Signer:         otherSigner,
		KID:            []byte("kid-1"),
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.install(classApp, suittest.Envelope(t, suittest.Options{
		SequenceNumber: 2,
		Signer:         signer,
		KID:            []byte("kid-1"),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ie, err := f.store.InstalledEnvelope(classApp)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), ie.SequenceNumber)
}

func TestNew_BadTrustedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.cbor")
	require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

	_, err := New(config.ServerConfig{TrustedKeys: []string{path}, Logger: log.New(io.Discard, "", 0)}, &storage.Storage{}, nil)
	assert.Error(t, err)

	_, err = New(config.ServerConfig{TrustedKeys: []string{path + ".missing"}}, &storage.Storage{}, nil)
	assert.Error(t, err)
}

func TestGetEnvelope_Errors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/envelopes/"+classApp.String(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/envelopes/app", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetReport(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveReport(0, []byte{0xA1, 0x01, 0x02}))

	rec := f.do(http.MethodGet, "/api/reports/0", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xA1, 0x01, 0x02}, rec.Body.Bytes())

	rec = f.do(http.MethodGet, "/api/reports/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/reports/9", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/api/reports/first", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.install(classApp, suittest.Envelope(t, suittest.Options{SequenceNumber: 1}))

	rec := f.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "suit_storage_operations_total")
}
