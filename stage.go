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
	"fmt"
	"strconv"
	"strings"
)

// Stage is one step of a pipeline: the previous classification is
// combined with the attribute raster Layer and reclassified with the
// rules in Sheet.
type Stage struct {
	Name string

	// Sheet identifies the rule table in the rules source.
	Sheet string

	// Layer is the name of the attribute raster in the store.
	Layer string

	// Columns names the rule table columns.
	Columns Columns

	// Output is the name the stage result is stored under. It defaults
	// to Name + "_classified".
	Output string
}

// OutputName returns the name the stage result is stored under.
func (s Stage) OutputName() string {
	if s.Output != "" {
		return s.Output
	}
	return s.Name + "_classified"
}

// TileName returns the name tile k of the stage result is stored under
// before the tiles are mosaicked.
func (s Stage) TileName(k int) string {
	return fmt.Sprintf("%s.tile%d", s.OutputName(), k)
}

// isTileName reports whether name has the form TileName returns.
func (s Stage) isTileName(name string) bool {
	k := strings.TrimPrefix(name, s.OutputName()+".tile")
	if k == name || k == "" {
		return false
	}
	_, err := strconv.Atoi(k)
	return err == nil
}

func (s Stage) validate() error {
	switch {
	case s.Name == "":
		return &ConfigurationError{Reason: "stage has no name"}
	case s.Layer == "":
		return &ConfigurationError{Stage: s.Name, Reason: "no attribute layer"}
	case s.Columns.CodeA == "" || s.Columns.CodeB == "" || s.Columns.Target == "":
		return &ConfigurationError{Stage: s.Name, Reason: "rule columns for code A, code B and target must all be named"}
	}
	return nil
}

// A RasterStore persists rasters by name.
type RasterStore interface {
	Read(ctx context.Context, name string) (*Raster, error)
	Write(ctx context.Context, name string, r *Raster) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// A RuleSource provides the rule table of a stage.
type RuleSource interface {
	Load(ctx context.Context, sheet string, cols Columns) (*RuleTable, error)
}

// A Mosaicker joins rasters covering disjoint parts of an extent into a
// single raster covering all of it.
type Mosaicker interface {
	Mosaic(parts []*Raster) (*Raster, error)
}

// A ProgressStore keeps the progress of a pipeline run between
// processes. *ProgressTracker implements it.
type ProgressStore interface {
	Load() (ProgressState, error)
	Save(ProgressState) error
	Clear() error
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
