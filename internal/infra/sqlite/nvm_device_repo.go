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

// NVMDeviceRecord describes one emulated device stored in the database.
type NVMDeviceRecord struct {
	ID             int64
	Name           string
	Size           uint64
	PageSize       uint64
	WriteBlockSize uint64
	CreatedAt      time.Time
}

// NVMDeviceRepository handles device geometry persistence.
type NVMDeviceRepository struct {
	db queryer
}

func NewNVMDeviceRepository(db queryer) *NVMDeviceRepository {
	return &NVMDeviceRepository{db: db}
}

// Create inserts a new device and returns the inserted id.
func (r *NVMDeviceRepository) Create(ctx context.Context, d *NVMDeviceRecord) (int64, error) {
	const q = `
		INSERT INTO nvm_devices (name, size, page_size, write_block_size, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.ExecContext(ctx, q, d.Name, d.Size, d.PageSize, d.WriteBlockSize, d.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert nvm device: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, nil
}

// FindByName returns the device with the given name, or nil when absent.
func (r *NVMDeviceRepository) FindByName(ctx context.Context, name string) (*NVMDeviceRecord, error) {
	const q = `
		SELECT id, name, size, page_size, write_block_size, created_at
		FROM nvm_devices
		WHERE name = ?
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, q, name)
	var d NVMDeviceRecord
	if err := row.Scan(&d.ID, &d.Name, &d.Size, &d.PageSize, &d.WriteBlockSize, &d.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan nvm device: %w", err)
	}
	return &d, nil
}
