/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kentakayama/suit-storage/internal/component"
	"github.com/kentakayama/suit-storage/internal/dfucache"
	"github.com/kentakayama/suit-storage/internal/digestcache"
	"github.com/kentakayama/suit-storage/internal/domain"
	"github.com/kentakayama/suit-storage/internal/fetch"
	"github.com/kentakayama/suit-storage/internal/platform"
	"github.com/kentakayama/suit-storage/internal/suit"
)

// pipeline is the fetch pipeline of a board.
type pipeline struct {
	registry *component.Registry
	platform *platform.Platform
}

func newPipeline(b *board) (*pipeline, error) {
	cfg := b.cfg.Platform

	cache := dfucache.New()
	for _, pool := range cfg.CachePools {
		if err := cache.AddPool(pool.ID, b.dev, pool.Region); err != nil {
			return nil, err
		}
	}
	// The first candidate region holds the envelope, the rest are DFU
	// cache partitions.
	regions, err := b.store.UpdateCandidate()
	switch {
	case err == nil:
		if len(regions) > 1 {
			if err := cache.UseCandidate(b.dev, regions[1:]); err != nil {
				return nil, err
			}
		}
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	reserved := append(slices.Clone(cfg.ReservedRegions), b.store.Partition())

	registry := component.NewRegistry(cfg.MaxComponents)
	source := fetch.Chain{
		&fetch.CacheSource{Cache: cache, ChunkSize: cfg.ChunkSize},
		fetch.NewHTTPSource(b.cfg.Fetch, cfg.ChunkSize),
	}
	p, err := platform.New(cfg, platform.Deps{
		Components: registry,
		Selector:   platform.NewSinkSelector(registry, b.dev, cache, cfg.MemPtrLimit, reserved),
		Source:     source,
		Digests:    digestcache.New(registry, cfg.DigestCacheSize),
		Metrics:    b.metrics,
	})
	if err != nil {
		return nil, err
	}
	return &pipeline{registry: registry, platform: p}, nil
}

func cmdFetch() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch COMPONENT-ID [URI]",
		Short: "Fetch a payload into a component",
		Long: `Fetch a payload into a component.

COMPONENT-ID is the hex encoded SUIT_Component_Identifier. The payload is
read from URI, looked up in the DFU cache first, or from the file given with
--payload.`,
		GroupID: "fetch",
		Args:    cobra.RangeArgs(1, 2),
		RunE: withBoard(func(cmd *cobra.Command, b *board, args []string) error {
			rawID, err := hex.DecodeString(args[0])
			if err != nil {
				return fmt.Errorf("component id: %w", err)
			}
			payloadFile, _ := cmd.Flags().GetString("payload")
			check, _ := cmd.Flags().GetBool("check")
			if (len(args) == 2) == (payloadFile != "") {
				return errors.New("give either URI or --payload")
			}

			p, err := newPipeline(b)
			if err != nil {
				return err
			}
			h, err := p.registry.Create(rawID)
			if err != nil {
				return err
			}
			defer func() { _ = p.registry.Release(h) }()

			ctx := cmd.Context()
			if payloadFile != "" {
				payload, err := os.ReadFile(payloadFile)
				if err != nil {
					return err
				}
				if check {
					err = p.platform.CheckFetchIntegrated(ctx, h, payload)
				} else {
					err = p.platform.FetchIntegrated(ctx, h, payload)
				}
				if err != nil {
					return err
				}
			} else {
				if check {
					err = p.platform.CheckFetch(ctx, h, args[1])
				} else {
					err = p.platform.Fetch(ctx, h, args[1])
				}
				if err != nil {
					return err
				}
			}
			if check {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			}

			typ, err := p.registry.Type(h)
			if err != nil {
				return err
			}
			switch typ {
			case suit.ComponentTypeCandidateImage, suit.ComponentTypeCandidateManifest:
				data, err := p.registry.MemPtr(h)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "fetched %d bytes into %s\n", len(data), typ)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "fetched into %s\n", typ)
			}
			return nil
		}),
	}
	cmd.Flags().String("payload", "", "file holding an integrated payload")
	cmd.Flags().Bool("check", false, "only check that the fetch could be done")
	return cmd
}
