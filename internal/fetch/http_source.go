/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"

	"github.com/kentakayama/suit-storage/internal/config"
)

// HTTPSource downloads http and https URIs.
type HTTPSource struct {
	httpClient *http.Client
	userAgent  string
	chunkSize  int
	logger     *log.Logger
}

func NewHTTPSource(cfg config.FetchConfig, chunkSize int) *HTTPSource {
	cfg = cfg.WithDefaults()
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureTLS},
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &HTTPSource{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent: cfg.UserAgent,
		chunkSize: chunkSize,
		logger:    cfg.Logger,
	}
}

func (s *HTTPSource) Fetch(ctx context.Context, uri string, w io.Writer) (int64, error) {
	u, err := url.Parse(uri)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return 0, fmt.Errorf("%w: %q is not an http uri", ErrNotFound, uri)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Printf("GET %s failed: %v", uri, err)
		return 0, fmt.Errorf("%w: perform request: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s returned %s", ErrNotFound, uri, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		s.logger.Printf("GET %s returned %s", uri, resp.Status)
		return 0, fmt.Errorf("%w: unexpected status %s: %s", ErrTransport, resp.Status, bytes.TrimSpace(body))
	}

	n, err := io.CopyBuffer(onlyWriter{w}, resp.Body, make([]byte, s.chunkSize))
	if err != nil {
		return n, fmt.Errorf("stream %s: %w", uri, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, fmt.Errorf("%w: %s announced %d bytes, got %d", ErrTransport, uri, resp.ContentLength, n)
	}
	return n, nil
}
