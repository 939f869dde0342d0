/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// NVMPageRepository handles page content persistence.
type NVMPageRepository struct {
	db queryer
}

func NewNVMPageRepository(db queryer) *NVMPageRepository {
	return &NVMPageRepository{db: db}
}

// Find returns the content of a page, or nil when the page is erased.
func (r *NVMPageRepository) Find(ctx context.Context, deviceID int64, page uint64) ([]byte, error) {
	const q = `
		SELECT data
		FROM nvm_pages
		WHERE device_id = ? AND page_index = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, deviceID, page)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan nvm page: %w", err)
	}
	return data, nil
}

// Upsert stores the full content of a page.
func (r *NVMPageRepository) Upsert(ctx context.Context, deviceID int64, page uint64, data []byte) error {
	const q = `
		INSERT INTO nvm_pages (device_id, page_index, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (device_id, page_index) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, q, deviceID, page, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert nvm page: %w", err)
	}
	return nil
}

// DeleteRange erases pages [first, last].
func (r *NVMPageRepository) DeleteRange(ctx context.Context, deviceID int64, first, last uint64) error {
	const q = `
		DELETE FROM nvm_pages
		WHERE device_id = ? AND page_index BETWEEN ? AND ?
	`
	if _, err := r.db.ExecContext(ctx, q, deviceID, first, last); err != nil {
		return fmt.Errorf("delete nvm pages: %w", err)
	}
	return nil
}

// CountProgrammed returns how many pages hold data.
func (r *NVMPageRepository) CountProgrammed(ctx context.Context, deviceID int64) (int64, error) {
	const q = `
		SELECT COUNT(*)
		FROM nvm_pages
		WHERE device_id = ?
	`
	var n int64
	if err := r.db.QueryRowContext(ctx, q, deviceID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count nvm pages: %w", err)
	}
	return n, nil
}
