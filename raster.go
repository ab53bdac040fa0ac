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

// Package habmap derives a categorical habitat classification by fusing
// categorical raster layers in stages. Each stage encodes the current
// classification and one attribute layer into a single composite code,
// looks the composite up in a table built from rule rows, and writes the
// resulting classification for the next stage to consume.
package habmap

import (
	"fmt"

	"github.com/ctessum/geom"
)

// DefaultNoData is the no-data sentinel used when none is specified.
const DefaultNoData int64 = -2147483648

// Raster is a grid of integer category codes. Data is stored row-major
// with row 0 at the southern (lower) edge of the extent, so the cell
// at column i, row j covers [X0+i*Dx, X0+(i+1)*Dx] × [Y0+j*Dy, Y0+(j+1)*Dy].
//
// A Raster produced by a stage is never modified afterwards; later stages
// only read it.
type Raster struct {
	Nx, Ny int // number of columns and rows

	X0, Y0 float64 // lower-left corner of the grid
	Dx, Dy float64 // cell edge lengths

	// NoData is the sentinel marking cells without a category.
	NoData int64

	Data []int64
}

// NewRaster returns a raster with the given shape and georeference whose
// cells are all set to noData.
func NewRaster(nx, ny int, x0, y0, dx, dy float64, noData int64) *Raster {
	r := &Raster{
		Nx: nx, Ny: ny,
		X0: x0, Y0: y0,
		Dx: dx, Dy: dy,
		NoData: noData,
		Data:   make([]int64, nx*ny),
	}
	for i := range r.Data {
		r.Data[i] = noData
	}
	return r
}

// NewRasterFrom returns a raster with unit cells and its origin at (0, 0),
// filled from rows given north to south, the way a grid is read on a map.
func NewRasterFrom(noData int64, rows [][]int64) *Raster {
	ny := len(rows)
	var nx int
	if ny > 0 {
		nx = len(rows[0])
	}
	r := NewRaster(nx, ny, 0, 0, 1, 1, noData)
	for k, row := range rows {
		if len(row) != nx {
			panic(fmt.Errorf("habmap: ragged raster row %d: %d != %d", k, len(row), nx))
		}
		copy(r.Data[(ny-1-k)*nx:(ny-k)*nx], row)
	}
	return r
}

// Get returns the value at column i, row j.
func (r *Raster) Get(i, j int) int64 { return r.Data[j*r.Nx+i] }

// Set sets the value at column i, row j.
func (r *Raster) Set(v int64, i, j int) { r.Data[j*r.Nx+i] = v }

// IsNoData reports whether v is the receiver's no-data sentinel.
func (r *Raster) IsNoData(v int64) bool { return v == r.NoData }

// setNoData changes the sentinel of r to v, rewriting the cells that
// held the old one.
func (r *Raster) setNoData(v int64) {
	if r.NoData == v {
		return
	}
	for i, c := range r.Data {
		if c == r.NoData {
			r.Data[i] = v
		}
	}
	r.NoData = v
}

// Rows returns the grid as rows listed north to south. It is the inverse
// of NewRasterFrom and is mostly useful for printing and comparisons.
func (r *Raster) Rows() [][]int64 {
	o := make([][]int64, r.Ny)
	for k := range o {
		j := r.Ny - 1 - k
		o[k] = append([]int64(nil), r.Data[j*r.Nx:(j+1)*r.Nx]...)
	}
	return o
}

// Max returns the largest valid value in the raster. ok is false if
// every cell is no-data.
func (r *Raster) Max() (max int64, ok bool) {
	for _, v := range r.Data {
		if v == r.NoData {
			continue
		}
		if !ok || v > max {
			max, ok = v, true
		}
	}
	return max, ok
}

// Min returns the smallest valid value in the raster. ok is false if
// every cell is no-data.
func (r *Raster) Min() (min int64, ok bool) {
	for _, v := range r.Data {
		if v == r.NoData {
			continue
		}
		if !ok || v < min {
			min, ok = v, true
		}
	}
	return min, ok
}

// Bounds returns the spatial extent of the raster.
func (r *Raster) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: r.X0, Y: r.Y0},
		Max: geom.Point{X: r.X0 + float64(r.Nx)*r.Dx, Y: r.Y0 + float64(r.Ny)*r.Dy},
	}
}

// sameGrid returns an *ExtentMismatchError if o does not share the
// receiver's shape and georeference.
func (r *Raster) sameGrid(o *Raster) error {
	switch {
	case r.Nx != o.Nx || r.Ny != o.Ny:
		return &ExtentMismatchError{
			Field:    "shape",
			Expected: fmt.Sprintf("%d×%d", r.Nx, r.Ny),
			Actual:   fmt.Sprintf("%d×%d", o.Nx, o.Ny),
		}
	case r.X0 != o.X0 || r.Y0 != o.Y0:
		return &ExtentMismatchError{
			Field:    "origin",
			Expected: fmt.Sprintf("(%g, %g)", r.X0, r.Y0),
			Actual:   fmt.Sprintf("(%g, %g)", o.X0, o.Y0),
		}
	case r.Dx != o.Dx || r.Dy != o.Dy:
		return &ExtentMismatchError{
			Field:    "resolution",
			Expected: fmt.Sprintf("%g×%g", r.Dx, r.Dy),
			Actual:   fmt.Sprintf("%g×%g", o.Dx, o.Dy),
		}
	}
	if len(r.Data) != r.Nx*r.Ny || len(o.Data) != o.Nx*o.Ny {
		return &ExtentMismatchError{
			Field:    "data length",
			Expected: fmt.Sprint(r.Nx * r.Ny),
			Actual:   fmt.Sprintf("%d and %d", len(r.Data), len(o.Data)),
		}
	}
	return nil
}

// Window returns a copy of the cells covered by t as a new raster whose
// origin is the lower-left corner of t.
func (r *Raster) Window(t Tile) *Raster {
	nx, ny := t.I1-t.I0, t.J1-t.J0
	o := &Raster{
		Nx: nx, Ny: ny,
		X0: r.X0 + float64(t.I0)*r.Dx,
		Y0: r.Y0 + float64(t.J0)*r.Dy,
		Dx: r.Dx, Dy: r.Dy,
		NoData: r.NoData,
		Data:   make([]int64, nx*ny),
	}
	for j := 0; j < ny; j++ {
		src := (t.J0+j)*r.Nx + t.I0
		copy(o.Data[j*nx:(j+1)*nx], r.Data[src:src+nx])
	}
	return o
}

// paste copies w into the receiver at the cell offset of t.
// w must have the shape of t.
func (r *Raster) paste(t Tile, w *Raster) {
	nx := t.I1 - t.I0
	for j := 0; j < t.J1-t.J0; j++ {
		dst := (t.J0+j)*r.Nx + t.I0
		copy(r.Data[dst:dst+nx], w.Data[j*nx:(j+1)*nx])
	}
}

// Equal reports whether r and o have the same grid and identical cells.
func (r *Raster) Equal(o *Raster) bool {
	if r.sameGrid(o) != nil || r.NoData != o.NoData {
		return false
	}
	for i, v := range r.Data {
		if o.Data[i] != v {
			return false
		}
	}
	return true
}
