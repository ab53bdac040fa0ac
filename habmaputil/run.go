/*
Copyright © 2025 the habmap authors.
This file is part of habmap.

habmap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

habmap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with habmap.  If not, see <http://www.gnu.org/licenses/>.
*/

package habmaputil

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/lnashier/viper"
	"github.com/spf13/cobra"

	"github.com/spatialmodel/habmap"
	"github.com/spatialmodel/habmap/cloud"
	"github.com/spatialmodel/habmap/rasterio"
	"github.com/spatialmodel/habmap/rules"
)

// Run runs the pipeline described by cfg, logging to the output of cmd.
func Run(ctx context.Context, cmd *cobra.Command, cfg *viper.Viper) error {
	log, closeLog, err := newLogger(cmd.OutOrStdout(), cfg.GetString("LogFile"), cfg.GetString("LogLevel"))
	if err != nil {
		return err
	}
	defer closeLog()

	stages, err := getStages("Stages", cfg)
	if err != nil {
		return err
	}
	fallback, err := habmap.ParseFallbackPolicy(cfg.GetString("Fallback"))
	if err != nil {
		return err
	}
	rulesPath := os.ExpandEnv(cfg.GetString("Rules"))
	if rulesPath == "" {
		return &habmap.ConfigurationError{Reason: "the Rules workbook is not set"}
	}
	if cfg.GetInt("TileSize") < 0 || cfg.GetInt("Workers") < 0 {
		return &habmap.ConfigurationError{Reason: "TileSize and Workers must not be negative"}
	}

	workspace := os.ExpandEnv(cfg.GetString("Workspace"))
	bucket, err := cloud.OpenBucket(ctx, workspace)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(workspace, "mem://") {
		defer bucket.Close()
	}
	store := rasterio.NewStore(bucket, "")
	store.Log = log

	wb := rules.New(rulesPath)
	wb.Log = log

	p := &habmap.Pipeline{
		Store:  store,
		Rules:  wb,
		Mosaic: rasterio.Mosaic{},
		Seed:   os.ExpandEnv(cfg.GetString("Seed")),
		Stages: stages,
		Only:   expandStringSlice(cfg.GetStringSlice("Only")),
		Chunker: habmap.Chunker{
			TileNx:  cfg.GetInt("TileSize"),
			TileNy:  cfg.GetInt("TileSize"),
			Workers: cfg.GetInt("Workers"),
		},
		Fallback:        fallback,
		FailOnUnmatched: cfg.GetBool("FailOnUnmatched"),
		Log:             log,
	}
	if pf := os.ExpandEnv(cfg.GetString("ProgressFile")); pf != "" {
		pt := &habmap.ProgressTracker{Path: pf}
		if cfg.GetBool("restart") {
			if err := pt.Clear(); err != nil {
				return err
			}
		}
		p.Progress = pt
	}

	start := time.Now()
	log.WithField("stages", len(stages)).Infof("habmap v%s: starting run in %s", habmap.Version, workspace)
	if err := p.Run(ctx); err != nil {
		log.WithError(err).Error("habmap: run failed")
		return err
	}
	log.Infof("habmap: run complete in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// Sheets prints the sheets of the rules workbook in cfg.
func Sheets(ctx context.Context, cmd *cobra.Command, cfg *viper.Viper) error {
	path := os.ExpandEnv(cfg.GetString("Rules"))
	if path == "" {
		return &habmap.ConfigurationError{Reason: "the Rules workbook is not set"}
	}
	names, err := rules.New(path).Sheets(ctx)
	if err != nil {
		return err
	}
	for i, n := range names {
		cmd.Printf("#%d\t%s\n", i, n)
	}
	return nil
}
