/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kentakayama/suit-storage/internal/nvm"
)

// NVM is an nvm.Device persisted in SQLite. One page equals one erase block.
// Every Write and Erase runs in its own transaction, so a host crash never
// leaves a half-programmed page behind.
type NVM struct {
	db             *sql.DB
	id             int64
	size           uint64
	pageSize       uint64
	writeBlockSize uint64
}

var _ nvm.Device = (*NVM)(nil)

// opTimeout bounds every database round trip of a device operation.
const opTimeout = 5 * time.Second

// OpenNVM opens the named device, creating it with the given geometry when it
// does not exist yet. An existing device must have the same geometry.
func OpenNVM(ctx context.Context, db *sql.DB, name string, size, pageSize, writeBlockSize uint64) (*NVM, error) {
	if pageSize == 0 || size == 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("invalid nvm geometry: size 0x%x page 0x%x", size, pageSize)
	}
	if writeBlockSize == 0 {
		writeBlockSize = 1
	}
	if pageSize%writeBlockSize != 0 {
		return nil, fmt.Errorf("invalid nvm geometry: page 0x%x write block 0x%x", pageSize, writeBlockSize)
	}

	devices := NewNVMDeviceRepository(db)
	rec, err := devices.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &NVMDeviceRecord{
			Name:           name,
			Size:           size,
			PageSize:       pageSize,
			WriteBlockSize: writeBlockSize,
			CreatedAt:      time.Now().UTC(),
		}
		if rec.ID, err = devices.Create(ctx, rec); err != nil {
			return nil, err
		}
	} else if rec.Size != size || rec.PageSize != pageSize || rec.WriteBlockSize != writeBlockSize {
		return nil, fmt.Errorf("nvm device %q exists with a different geometry", name)
	}

	return &NVM{
		db:             db,
		id:             rec.ID,
		size:           rec.Size,
		pageSize:       rec.PageSize,
		writeBlockSize: rec.WriteBlockSize,
	}, nil
}

// Ready reports whether the database still answers.
func (n *NVM) Ready() bool {
	if n.db == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return n.db.PingContext(ctx) == nil
}

func (n *NVM) Size() uint64           { return n.size }
func (n *NVM) EraseBlockSize() uint64 { return n.pageSize }
func (n *NVM) WriteBlockSize() uint64 { return n.writeBlockSize }

func (n *NVM) Read(off uint64, buf []byte) error {
	if err := nvm.CheckRange(n, off, uint64(len(buf)), 0); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	pages := NewNVMPageRepository(n.db)
	for done := uint64(0); done < uint64(len(buf)); {
		addr := off + done
		page, inPage := addr/n.pageSize, addr%n.pageSize
		cnt := min(n.pageSize-inPage, uint64(len(buf))-done)
		data, err := pages.Find(ctx, n.id, page)
		if err != nil {
			return fmt.Errorf("%w: %w", nvm.ErrIO, err)
		}
		dst := buf[done : done+cnt]
		if data == nil {
			fillErased(dst)
		} else {
			copy(dst, data[inPage:inPage+cnt])
		}
		done += cnt
	}
	return nil
}

func (n *NVM) Write(off uint64, buf []byte) error {
	if err := nvm.CheckRange(n, off, uint64(len(buf)), n.writeBlockSize); err != nil {
		return err
	}
	return n.inTx(func(ctx context.Context, pages *NVMPageRepository) error {
		for done := uint64(0); done < uint64(len(buf)); {
			addr := off + done
			page, inPage := addr/n.pageSize, addr%n.pageSize
			cnt := min(n.pageSize-inPage, uint64(len(buf))-done)
			data, err := pages.Find(ctx, n.id, page)
			if err != nil {
				return err
			}
			if data == nil {
				data = make([]byte, n.pageSize)
				fillErased(data)
			}
			// Programming only clears bits.
			for i := uint64(0); i < cnt; i++ {
				data[inPage+i] &= buf[done+i]
			}
			if err := pages.Upsert(ctx, n.id, page, data); err != nil {
				return err
			}
			done += cnt
		}
		return nil
	})
}

func (n *NVM) Erase(off, size uint64) error {
	if err := nvm.CheckRange(n, off, size, n.pageSize); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	return n.inTx(func(ctx context.Context, pages *NVMPageRepository) error {
		return pages.DeleteRange(ctx, n.id, off/n.pageSize, (off+size)/n.pageSize-1)
	})
}

// ProgrammedPages returns the number of pages that are not erased.
func (n *NVM) ProgrammedPages(ctx context.Context) (int64, error) {
	return NewNVMPageRepository(n.db).CountProgrammed(ctx, n.id)
}

func (n *NVM) inTx(fn func(ctx context.Context, pages *NVMPageRepository) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	tx, err := n.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", nvm.ErrIO, err)
	}
	defer tx.Rollback()

	if err := fn(ctx, NewNVMPageRepository(tx)); err != nil {
		return fmt.Errorf("%w: %w", nvm.ErrIO, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", nvm.ErrIO, err)
	}
	return nil
}

func fillErased(b []byte) {
	copy(b, bytes.Repeat([]byte{nvm.ErasedValue}, len(b)))
}
