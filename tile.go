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

	"github.com/ctessum/geom"
)

// Tile is a rectangular window of grid cells: columns [I0, I1) and rows
// [J0, J1).
type Tile struct {
	I0, J0, I1, J1 int
}

func (t Tile) String() string {
	return fmt.Sprintf("[%d:%d, %d:%d]", t.I0, t.I1, t.J0, t.J1)
}

// Cells returns the number of cells in t.
func (t Tile) Cells() int { return (t.I1 - t.I0) * (t.J1 - t.J0) }

// Bounds returns the spatial extent of t on the grid of r.
func (t Tile) Bounds(r *Raster) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: r.X0 + float64(t.I0)*r.Dx, Y: r.Y0 + float64(t.J0)*r.Dy},
		Max: geom.Point{X: r.X0 + float64(t.I1)*r.Dx, Y: r.Y0 + float64(t.J1)*r.Dy},
	}
}

// Tiler lazily partitions an nx×ny grid into tiles of at most
// tileNx×tileNy cells. Tiles are produced left to right, starting with
// the northernmost band and moving south, and together cover every cell
// exactly once.
type Tiler struct {
	nx, ny         int
	tileNx, tileNy int

	i, band int
}

// NewTiler returns a Tiler for an nx×ny grid. A tile dimension that is
// not positive spans the whole grid in that direction.
func NewTiler(nx, ny, tileNx, tileNy int) *Tiler {
	if tileNx <= 0 || tileNx > nx {
		tileNx = nx
	}
	if tileNy <= 0 || tileNy > ny {
		tileNy = ny
	}
	return &Tiler{nx: nx, ny: ny, tileNx: tileNx, tileNy: tileNy}
}

// Len returns the total number of tiles.
func (tl *Tiler) Len() int {
	if tl.nx == 0 || tl.ny == 0 {
		return 0
	}
	return ceilDiv(tl.nx, tl.tileNx) * ceilDiv(tl.ny, tl.tileNy)
}

// Next returns the next tile, or false when every tile has been returned.
func (tl *Tiler) Next() (Tile, bool) {
	if tl.nx == 0 || tl.ny == 0 {
		return Tile{}, false
	}
	j1 := tl.ny - tl.band*tl.tileNy
	if j1 <= 0 {
		return Tile{}, false
	}
	t := Tile{
		I0: tl.i,
		I1: min(tl.i+tl.tileNx, tl.nx),
		J0: max(j1-tl.tileNy, 0),
		J1: j1,
	}
	tl.i = t.I1
	if tl.i >= tl.nx {
		tl.i = 0
		tl.band++
	}
	return t, true
}

// Tiles returns every tile of an nx×ny grid in Tiler order.
func Tiles(nx, ny, tileNx, tileNy int) []Tile {
	tl := NewTiler(nx, ny, tileNx, tileNy)
	o := make([]Tile, 0, tl.Len())
	for t, ok := tl.Next(); ok; t, ok = tl.Next() {
		o = append(o, t)
	}
	return o
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
