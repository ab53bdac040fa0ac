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
	"sort"
	"strings"
)

// FallbackPolicy determines the output for composite codes that no rule
// maps.
type FallbackPolicy int

const (
	// FallbackNoData sets unmatched cells to no-data.
	FallbackNoData FallbackPolicy = iota

	// FallbackPassThrough leaves the composite code of unmatched cells
	// unchanged.
	FallbackPassThrough

	// FallbackKeepCurrent sets unmatched cells to the classification code
	// they had before the stage, i.e. the composite divided by the scale.
	FallbackKeepCurrent
)

func (p FallbackPolicy) String() string {
	switch p {
	case FallbackNoData:
		return "nodata"
	case FallbackPassThrough:
		return "passthrough"
	case FallbackKeepCurrent:
		return "keepcurrent"
	default:
		return fmt.Sprintf("FallbackPolicy(%d)", int(p))
	}
}

// ParseFallbackPolicy parses the names returned by FallbackPolicy.String.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nodata", "tonodata":
		return FallbackNoData, nil
	case "passthrough", "passthroughunchanged":
		return FallbackPassThrough, nil
	case "keepcurrent":
		return FallbackKeepCurrent, nil
	}
	return 0, &ConfigurationError{Reason: fmt.Sprintf(
		"fallback policy %q is not one of nodata, passthrough or keepcurrent", s)}
}

// maxExamples is the number of unmatched codes kept for reporting.
const maxExamples = 5

// Coverage summarizes the composite codes a reclassification could not
// find in its remap table.
type Coverage struct {
	// Cells is the number of unmatched cells.
	Cells int

	// unmatched holds the distinct unmatched codes.
	unmatched map[int64]struct{}
}

// Codes returns the number of distinct unmatched codes.
func (c Coverage) Codes() int { return len(c.unmatched) }

// Examples returns up to n unmatched codes, smallest first.
func (c Coverage) Examples(n int) []int64 {
	codes := make([]int64, 0, len(c.unmatched))
	for k := range c.unmatched {
		codes = append(codes, k)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	if len(codes) > n {
		codes = codes[:n]
	}
	return codes
}

// merge adds the unmatched codes in o to the receiver.
func (c *Coverage) merge(o Coverage) {
	c.Cells += o.Cells
	if len(o.unmatched) == 0 {
		return
	}
	if c.unmatched == nil {
		c.unmatched = make(map[int64]struct{}, len(o.unmatched))
	}
	for k := range o.unmatched {
		c.unmatched[k] = struct{}{}
	}
}

// Warning returns nil if every code was matched.
func (c Coverage) Warning(stage string, policy FallbackPolicy) *IncompleteCoverageWarning {
	if c.Cells == 0 {
		return nil
	}
	return &IncompleteCoverageWarning{
		Stage:    stage,
		Cells:    c.Cells,
		Codes:    c.Codes(),
		Examples: c.Examples(maxExamples),
		Policy:   policy,
	}
}

// Reclassify replaces every composite code in r with its target in t.
// Codes absent from t are handled according to policy, and no-data cells
// stay no-data under r's sentinel. The work is one pass over the grid no matter how many
// rules t was built from.
func Reclassify(r *Raster, t *RemapTable, policy FallbackPolicy) (*Raster, Coverage) {
	o := &Raster{
		Nx: r.Nx, Ny: r.Ny,
		X0: r.X0, Y0: r.Y0,
		Dx: r.Dx, Dy: r.Dy,
		NoData: r.NoData,
		Data:   make([]int64, len(r.Data)),
	}
	var cov Coverage
	for i, v := range r.Data {
		if v == r.NoData {
			o.Data[i] = r.NoData
			continue
		}
		if target, ok := t.m[v]; ok {
			o.Data[i] = target
			continue
		}
		cov.Cells++
		if cov.unmatched == nil {
			cov.unmatched = make(map[int64]struct{})
		}
		cov.unmatched[v] = struct{}{}
		switch policy {
		case FallbackPassThrough:
			o.Data[i] = v
		case FallbackKeepCurrent:
			o.Data[i] = v / t.scale
		default:
			o.Data[i] = r.NoData
		}
	}
	return o, cov
}
