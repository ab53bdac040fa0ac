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

package rasterio

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"

	"github.com/spatialmodel/habmap"
)

// Mosaic joins rasters that share a resolution and no-data value and
// cover disjoint parts of a rectangular extent. It implements
// habmap.Mosaicker.
type Mosaic struct{}

// part is a raster indexed by its extent.
type part struct {
	geom.Geom
	i int
}

// Mosaic returns a raster covering the union of the extents of parts.
// Parts that overlap, are not aligned to a common grid, or leave gaps in
// the union extent are rejected.
func (Mosaic) Mosaic(parts []*habmap.Raster) (*habmap.Raster, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("rasterio: mosaic of no rasters")
	}
	first := parts[0]
	if first.Dx <= 0 || first.Dy <= 0 {
		return nil, fmt.Errorf("rasterio: mosaic: invalid resolution %g×%g", first.Dx, first.Dy)
	}
	extent := geom.NewBounds()
	index := rtree.NewTree(25, 50)
	cells := 0
	for i, p := range parts {
		if p.Dx != first.Dx || p.Dy != first.Dy {
			return nil, &habmap.ExtentMismatchError{Field: "resolution",
				Expected: fmt.Sprintf("%g×%g", first.Dx, first.Dy),
				Actual:   fmt.Sprintf("%g×%g in part %d", p.Dx, p.Dy, i)}
		}
		if p.NoData != first.NoData {
			return nil, fmt.Errorf("rasterio: mosaic: part %d has no-data value %d, not %d", i, p.NoData, first.NoData)
		}
		if _, err := offset(p.X0-first.X0, p.Dx); err != nil {
			return nil, fmt.Errorf("rasterio: mosaic: part %d: %v", i, err)
		}
		if _, err := offset(p.Y0-first.Y0, p.Dy); err != nil {
			return nil, fmt.Errorf("rasterio: mosaic: part %d: %v", i, err)
		}
		b := p.Bounds()
		for _, g := range index.SearchIntersect(b) {
			o := g.(part)
			if overlapArea(b, o.Bounds()) > 0 {
				return nil, fmt.Errorf("rasterio: mosaic: parts %d and %d overlap", o.i, i)
			}
		}
		index.Insert(part{Geom: b, i: i})
		extent.Extend(b)
		cells += p.Nx * p.Ny
	}

	nx, err := offset(extent.Max.X-extent.Min.X, first.Dx)
	if err != nil {
		return nil, fmt.Errorf("rasterio: mosaic: %v", err)
	}
	ny, err := offset(extent.Max.Y-extent.Min.Y, first.Dy)
	if err != nil {
		return nil, fmt.Errorf("rasterio: mosaic: %v", err)
	}
	if cells != nx*ny {
		return nil, fmt.Errorf("rasterio: mosaic: parts cover %d of the %d cells in their extent", cells, nx*ny)
	}

	o := habmap.NewRaster(nx, ny, extent.Min.X, extent.Min.Y, first.Dx, first.Dy, first.NoData)
	for _, p := range parts {
		i0, _ := offset(p.X0-extent.Min.X, p.Dx)
		j0, _ := offset(p.Y0-extent.Min.Y, p.Dy)
		for j := 0; j < p.Ny; j++ {
			copy(o.Data[(j0+j)*nx+i0:(j0+j)*nx+i0+p.Nx], p.Data[j*p.Nx:(j+1)*p.Nx])
		}
	}
	return o, nil
}

// offset returns d/cell if it is a whole number of cells.
func offset(d, cell float64) (int, error) {
	n := d / cell
	r := math.Round(n)
	if math.Abs(n-r) > 1e-6 {
		return 0, fmt.Errorf("offset %g is not a whole number of %g cells", d, cell)
	}
	return int(r), nil
}

func overlapArea(a, b *geom.Bounds) float64 {
	w := math.Min(a.Max.X, b.Max.X) - math.Max(a.Min.X, b.Min.X)
	h := math.Min(a.Max.Y, b.Max.Y) - math.Max(a.Min.Y, b.Min.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
