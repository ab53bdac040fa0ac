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

import "fmt"

// CompositeNoData returns the no-data sentinel of a composite raster
// combined from a classification whose sentinel is noData. Composite
// codes are never negative, so a negative sentinel is kept and any other
// is replaced by -1.
func CompositeNoData(noData int64) int64 {
	if noData < 0 {
		return noData
	}
	return -1
}

// Combine returns a raster whose cells are a*scale+b for the
// corresponding cells of a and b. Cells that are no-data in either input
// are no-data in the output, whose sentinel is CompositeNoData(a.NoData).
// a and b must share a grid.
//
// Every valid value of b must be in [0, scale) and every valid value of a
// must be non-negative; otherwise two different pairs could produce the
// same composite and a *ConfigurationError is returned.
func Combine(a, b *Raster, scale int64) (*Raster, error) {
	if scale <= 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("scaling factor %d is not positive", scale)}
	}
	if err := a.sameGrid(b); err != nil {
		return nil, err
	}
	if maxA, ok := a.Max(); ok {
		if err := checkRange(maxA, scale); err != nil {
			return nil, err
		}
	}
	o := &Raster{
		Nx: a.Nx, Ny: a.Ny,
		X0: a.X0, Y0: a.Y0,
		Dx: a.Dx, Dy: a.Dy,
		NoData: CompositeNoData(a.NoData),
		Data:   make([]int64, len(a.Data)),
	}
	for i, va := range a.Data {
		vb := b.Data[i]
		if va == a.NoData || vb == b.NoData {
			o.Data[i] = o.NoData
			continue
		}
		if vb < 0 || vb >= scale {
			return nil, &ConfigurationError{Reason: fmt.Sprintf(
				"attribute code %d at cell %d is outside [0, %d)", vb, i, scale)}
		}
		if va < 0 {
			return nil, &ConfigurationError{Reason: fmt.Sprintf(
				"classification code %d at cell %d is negative", va, i)}
		}
		o.Data[i] = Encode(va, vb, scale)
	}
	return o, nil
}
