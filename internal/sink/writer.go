/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sink

import "io"

type writer struct {
	s StreamSink
}

// NewWriter adapts s to io.Writer. Empty writes are ignored.
func NewWriter(s StreamSink) io.Writer {
	return &writer{s: s}
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := w.s.Write(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
