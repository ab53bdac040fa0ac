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

package habmap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/habmap/internal/hash"
)

// Pipeline runs a sequence of stages, each refining the classification
// produced by the one before it.
type Pipeline struct {
	Store RasterStore
	Rules RuleSource

	// Mosaic joins tile outputs. It is required when the tile size
	// splits the extent into more than one tile.
	Mosaic Mosaicker

	// Progress, if not nil, records completed work so an interrupted
	// run can resume where it stopped.
	Progress ProgressStore

	// Seed is the name of the raster the first stage refines.
	Seed string

	Stages []Stage

	// Only, if not empty, restricts the run to the named stages. The
	// input of each selected stage must already be in the store.
	// Progress is not tracked for such runs.
	Only []string

	Chunker  Chunker
	Fallback FallbackPolicy

	// FailOnUnmatched makes composite codes without a rule an error
	// rather than a warning.
	FailOnUnmatched bool

	Log logrus.FieldLogger
}

// fingerprintConfig holds the settings a saved progress state depends on.
type fingerprintConfig struct {
	Seed           string
	Stages         []Stage
	TileNx, TileNy int
	Fallback       string
}

// Fingerprint identifies the settings that determine the outputs of a
// run. Progress saved under one fingerprint cannot be resumed under
// another.
func (p *Pipeline) Fingerprint() string {
	return hash.Hash(fingerprintConfig{
		Seed:     p.Seed,
		Stages:   p.Stages,
		TileNx:   p.Chunker.TileNx,
		TileNy:   p.Chunker.TileNy,
		Fallback: p.Fallback.String(),
	})
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

func (p *Pipeline) validate() error {
	if p.Store == nil {
		return &ConfigurationError{Reason: "no raster store"}
	}
	if p.Rules == nil {
		return &ConfigurationError{Reason: "no rules source"}
	}
	if p.Seed == "" {
		return &ConfigurationError{Reason: "no seed raster"}
	}
	if len(p.Stages) == 0 {
		return &ConfigurationError{Reason: "no stages"}
	}
	names := make(map[string]bool)
	outputs := map[string]bool{p.Seed: true}
	for _, s := range p.Stages {
		if err := s.validate(); err != nil {
			return err
		}
		if names[s.Name] {
			return &ConfigurationError{Stage: s.Name, Reason: "duplicate stage name"}
		}
		names[s.Name] = true
		if outputs[s.OutputName()] {
			return &ConfigurationError{Stage: s.Name, Reason: fmt.Sprintf("output %q overwrites an earlier raster", s.OutputName())}
		}
		outputs[s.OutputName()] = true
	}
	for _, n := range p.Only {
		if !names[n] {
			return &ConfigurationError{Reason: fmt.Sprintf("selected stage %q is not defined", n)}
		}
	}
	return nil
}

// input returns the name of the raster stage i refines.
func (p *Pipeline) input(i int) string {
	if i == 0 {
		return p.Seed
	}
	return p.Stages[i-1].OutputName()
}

func (p *Pipeline) selected(s Stage) bool {
	return len(p.Only) == 0 || contains(p.Only, s.Name)
}

// Run runs the stages in order. Errors from a stage are returned as
// *StageError. On success the saved progress is cleared.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.validate(); err != nil {
		return err
	}
	log := p.logger()
	progress := p.Progress
	if len(p.Only) > 0 {
		progress = nil
	}

	fp := p.Fingerprint()
	state := FreshProgress()
	if progress != nil {
		s, err := progress.Load()
		if err != nil {
			return err
		}
		if !s.IsFresh() {
			if s.Fingerprint != fp {
				return &ProgressCorruptionError{Path: progressPath(progress),
					Reason: "saved under a different configuration; restart to discard it"}
			}
			if s.Stage > len(p.Stages) {
				return &ProgressCorruptionError{Path: progressPath(progress),
					Reason: fmt.Sprintf("stage index %d is past the last stage", s.Stage)}
			}
			log.WithFields(logrus.Fields{"stage": s.Stage, "tile": s.Row}).Info("habmap: resuming")
		}
		state = s
	}
	state.Fingerprint = fp

	for i, s := range p.Stages {
		if i < state.Stage {
			log.WithField("stage", s.Name).Info("habmap: stage already complete")
			// An earlier run may have stopped between committing the
			// stage and removing its tiles.
			if err := p.deleteTiles(ctx, s); err != nil {
				return &StageError{Index: i, Name: s.Name, Err: err}
			}
			continue
		}
		if !p.selected(s) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		from := 0
		if i == state.Stage {
			from = state.Row + 1
		}
		if err := p.runStage(ctx, i, s, from, progress); err != nil {
			return &StageError{Index: i, Name: s.Name, Err: err}
		}
		if progress != nil {
			if err := progress.Save(ProgressState{Stage: i + 1, Row: -1, Fingerprint: fp}); err != nil {
				return &StageError{Index: i, Name: s.Name, Err: err}
			}
		}
		// Tiles are only removed once the stage is committed, so saved
		// progress never points at deleted tiles.
		if err := p.deleteTiles(ctx, s); err != nil {
			return &StageError{Index: i, Name: s.Name, Err: err}
		}
	}
	if progress != nil {
		return progress.Clear()
	}
	return nil
}

func progressPath(ps ProgressStore) string {
	if t, ok := ps.(*ProgressTracker); ok {
		return t.Path
	}
	return fmt.Sprintf("%T", ps)
}

// runStage computes stage i and persists its output. Tiles with an index
// below from are taken from the store rather than recomputed.
func (p *Pipeline) runStage(ctx context.Context, i int, s Stage, from int, progress ProgressStore) error {
	log := p.logger().WithField("stage", s.Name)
	in := p.input(i)
	if len(p.Only) > 0 {
		names, err := p.Store.List(ctx)
		if err != nil {
			return err
		}
		if !contains(names, in) {
			return &ConfigurationError{Stage: s.Name, Reason: fmt.Sprintf("input raster %q is not in the store", in)}
		}
	}
	a, err := p.Store.Read(ctx, in)
	if err != nil {
		return err
	}
	b, err := p.Store.Read(ctx, s.Layer)
	if err != nil {
		return err
	}
	if err := a.sameGrid(b); err != nil {
		var em *ExtentMismatchError
		if errors.As(err, &em) {
			em.Stage = s.Name
		}
		return err
	}
	rt, err := p.Rules.Load(ctx, s.Sheet, s.Columns)
	if err != nil {
		return err
	}
	rt.Stage = s.Name
	scale, err := StageScale(b, rt)
	if err != nil {
		return err
	}
	table, err := BuildRemapTable(rt, scale)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"scale":      scale,
		"rules":      len(rt.Rows),
		"entries":    table.Len(),
		"duplicates": table.Duplicates(),
	}).Info("habmap: built remap table")
	if table.Duplicates() > 0 {
		log.Warnf("habmap: %d rule rows override earlier rows for the same codes", table.Duplicates())
	}

	var (
		out *Raster
		cov Coverage
	)
	ntiles := p.Chunker.Tiler(a).Len()
	if ntiles == 1 {
		out, cov, err = p.Chunker.Run(ctx, a, b, table, p.Fallback)
		if err != nil {
			return err
		}
		if err := p.checkCoverage(cov, s, log); err != nil {
			return err
		}
	} else {
		if p.Mosaic == nil {
			return &ConfigurationError{Stage: s.Name, Reason: "tiled processing needs a mosaic service"}
		}
		if from > 0 {
			log.WithField("tile", from).Info("habmap: resuming from tile")
		}
		sink := &persistSink{
			store:    p.Store,
			stage:    s,
			progress: progress,
			state:    ProgressState{Stage: i, Row: from - 1, Fingerprint: p.Fingerprint()},
			done:     make(map[int]bool),
			log:      log,
		}
		cov, err = p.Chunker.Process(ctx, a, b, table, p.Fallback, from, sink)
		if err != nil {
			return err
		}
		if err := p.checkCoverage(cov, s, log); err != nil {
			if progress != nil {
				// Recompute every tile next time so the unmatched codes
				// are reported again.
				if err2 := progress.Save(ProgressState{Stage: i, Row: -1, Fingerprint: p.Fingerprint()}); err2 != nil {
					log.WithError(err2).Error("habmap: resetting progress")
				}
			}
			return err
		}
		parts := make([]*Raster, ntiles)
		for k := range parts {
			if parts[k], err = p.Store.Read(ctx, s.TileName(k)); err != nil {
				return err
			}
		}
		if out, err = p.Mosaic.Mosaic(parts); err != nil {
			return err
		}
	}

	name := s.OutputName()
	if err := p.Store.Write(ctx, name, out); err != nil {
		return err
	}
	names, err := p.Store.List(ctx)
	if err != nil {
		return err
	}
	if !contains(names, name) {
		return fmt.Errorf("habmap: output %q was written but is not listed by the store", name)
	}
	log.WithField("output", name).Info("habmap: stage complete")
	return nil
}

func (p *Pipeline) checkCoverage(cov Coverage, s Stage, log logrus.FieldLogger) error {
	w := cov.Warning(s.Name, p.Fallback)
	if w == nil {
		return nil
	}
	if p.FailOnUnmatched {
		return w
	}
	log.Warn(w.Error())
	return nil
}

// deleteTiles removes every tile raster of a stage in the store.
func (p *Pipeline) deleteTiles(ctx context.Context, s Stage) error {
	names, err := p.Store.List(ctx)
	if err != nil {
		return err
	}
	for _, n := range names {
		if !s.isTileName(n) {
			continue
		}
		if err := p.Store.Delete(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// persistSink writes each tile of a stage to the store and advances the
// saved progress to the highest tile below which every tile is persisted.
type persistSink struct {
	store    RasterStore
	stage    Stage
	progress ProgressStore
	log      logrus.FieldLogger

	mu    sync.Mutex
	state ProgressState
	done  map[int]bool
}

func (s *persistSink) Put(ctx context.Context, res TileResult) error {
	if err := s.store.Write(ctx, s.stage.TileName(res.Index), res.Raster); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done[res.Index] = true
	advanced := false
	for s.done[s.state.Row+1] {
		delete(s.done, s.state.Row+1)
		s.state.Row++
		advanced = true
	}
	s.log.WithField("tile", res.Index).Debug("habmap: tile persisted")
	if !advanced || s.progress == nil {
		return nil
	}
	return s.progress.Save(s.state)
}
