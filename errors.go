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
	"fmt"
	"strings"
)

// ConfigurationError reports a missing or invalid input to the scaling
// factor calculation or to the composite encoding.
type ConfigurationError struct {
	Stage  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Stage == "" {
		return "habmap: configuration: " + e.Reason
	}
	return fmt.Sprintf("habmap: configuration of stage %s: %s", e.Stage, e.Reason)
}

// ExtentMismatchError reports two rasters that are not aligned on the
// same grid.
type ExtentMismatchError struct {
	Stage    string
	Field    string // "shape", "origin", "resolution" or "data length"
	Expected string
	Actual   string
}

func (e *ExtentMismatchError) Error() string {
	s := fmt.Sprintf("habmap: raster %s mismatch: expected %s, got %s", e.Field, e.Expected, e.Actual)
	if e.Stage != "" {
		s += " in stage " + e.Stage
	}
	return s
}

// RuleLoadError reports a rule table that could not be read.
type RuleLoadError struct {
	Path  string
	Sheet string
	Err   error
}

func (e *RuleLoadError) Error() string {
	return fmt.Sprintf("rules: loading sheet %q of %s: %v", e.Sheet, e.Path, e.Err)
}

func (e *RuleLoadError) Unwrap() error { return e.Err }

// ProgressCorruptionError reports a progress record that exists but
// cannot be trusted.
type ProgressCorruptionError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ProgressCorruptionError) Error() string {
	s := fmt.Sprintf("habmap: progress file %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ProgressCorruptionError) Unwrap() error { return e.Err }

// IncompleteCoverageWarning reports composite codes present in the data
// that no rule maps. It is logged rather than returned unless the
// pipeline is configured to fail on unmatched codes.
type IncompleteCoverageWarning struct {
	Stage string

	// Cells is the number of cells holding an unmatched code and
	// Codes the number of distinct unmatched codes.
	Cells, Codes int

	// Examples holds a few of the unmatched codes, smallest first.
	Examples []int64

	Policy FallbackPolicy
}

func (w *IncompleteCoverageWarning) Error() string {
	ex := make([]string, len(w.Examples))
	for i, c := range w.Examples {
		ex[i] = fmt.Sprint(c)
	}
	return fmt.Sprintf("habmap: stage %s: %d cells with %d unmatched composite codes (e.g. %s) set by fallback %s",
		w.Stage, w.Cells, w.Codes, strings.Join(ex, ", "), w.Policy)
}

// StageError attaches the stage to an error that aborted a pipeline run.
type StageError struct {
	Index int
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TileError attaches a tile to an error raised while processing it.
type TileError struct {
	Index int
	Tile  Tile
	Err   error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %d %v: %v", e.Index, e.Tile, e.Err)
}

func (e *TileError) Unwrap() error { return e.Err }
