/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/kentakayama/suit-storage/internal/config"
	"github.com/kentakayama/suit-storage/internal/infra/sqlite"
	"github.com/kentakayama/suit-storage/internal/metric"
	"github.com/kentakayama/suit-storage/internal/nvm"
	"github.com/kentakayama/suit-storage/internal/storage"
)

// board is the device image every command works on.
type board struct {
	cfg     config.Config
	dev     nvm.Device
	store   *storage.Storage
	metrics *metric.Metrics
	close   func() error
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	logger := log.New(io.Discard, "", 0)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = log.New(os.Stderr, "suitctl: ", log.LstdFlags)
	}

	var cfg config.Config
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}
	return cfg.WithDefaults(logger), nil
}

func openDevice(ctx context.Context, cfg config.NVMConfig) (nvm.Device, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return nvm.NewMemory(cfg.Size, cfg.EraseBlockSize, cfg.WriteBlockSize), func() error { return nil }, nil
	case "file":
		if cfg.Path == "" {
			return nil, nil, errors.New("nvm backend file requires a path")
		}
		f, err := nvm.OpenFile(cfg.Path, cfg.Size, cfg.EraseBlockSize, cfg.WriteBlockSize)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, nil, errors.New("nvm backend sqlite requires a path")
		}
		db, err := sqlite.InitDB(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		n, err := sqlite.OpenNVM(ctx, db, cfg.Name, cfg.Size, cfg.EraseBlockSize, cfg.WriteBlockSize)
		if err != nil {
			_ = sqlite.CloseDB(db)
			return nil, nil, err
		}
		return n, func() error { return sqlite.CloseDB(db) }, nil
	}
	return nil, nil, fmt.Errorf("unknown nvm backend %q", cfg.Backend)
}

func openBoard(cmd *cobra.Command) (*board, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dev, closeDev, err := openDevice(cmd.Context(), cfg.NVM)
	if err != nil {
		return nil, err
	}

	metrics := metric.New()
	store := storage.New(dev, cfg.Storage, metrics)
	if err := store.Init(); err != nil {
		_ = closeDev()
		return nil, fmt.Errorf("initialize storage: %w", err)
	}
	return &board{
		cfg:     cfg,
		dev:     dev,
		store:   store,
		metrics: metrics,
		close:   closeDev,
	}, nil
}

// withBoard opens the board around fn.
func withBoard(fn func(cmd *cobra.Command, b *board, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		b, err := openBoard(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := b.close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		return fn(cmd, b, args)
	}
}
