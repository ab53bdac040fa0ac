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

// Package rasterio stores classification rasters as netCDF files in
// blob storage and joins tiled rasters back together.
package rasterio

import (
	"bytes"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/ctessum/cdf"

	"github.com/spatialmodel/habmap"
)

// DataVersion is the version of the raster file layout. Files with a
// different version cannot be read.
const DataVersion = "1"

// classVar is the name of the variable holding the cell codes.
const classVar = "Class"

// buffer is an in-memory cdf.ReaderWriterAt.
type buffer struct {
	*aws.WriteAtBuffer
}

func newBuffer(b []byte) buffer { return buffer{aws.NewWriteAtBuffer(b)} }

func (b buffer) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(b.Bytes()).ReadAt(p, off)
}

// Encode returns r as a netCDF file. Codes are stored as 32-bit
// integers; a raster holding a code that does not fit returns an error.
func Encode(r *habmap.Raster) ([]byte, error) {
	if r.Nx <= 0 || r.Ny <= 0 {
		return nil, fmt.Errorf("rasterio: cannot encode a %d×%d raster", r.Nx, r.Ny)
	}
	if len(r.Data) != r.Nx*r.Ny {
		return nil, fmt.Errorf("rasterio: raster has %d cells but %d values", r.Nx*r.Ny, len(r.Data))
	}
	if r.NoData < math.MinInt32 || r.NoData > math.MaxInt32 {
		return nil, fmt.Errorf("rasterio: no-data value %d does not fit in 32 bits", r.NoData)
	}
	data := make([]int32, len(r.Data))
	for i, v := range r.Data {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return nil, fmt.Errorf("rasterio: code %d at cell %d does not fit in 32 bits", v, i)
		}
		data[i] = int32(v)
	}

	h := cdf.NewHeader([]string{"x", "y"}, []int{r.Nx, r.Ny})
	h.AddAttribute("", "comment", "habmap classification raster")
	h.AddAttribute("", "x0", []float64{r.X0})
	h.AddAttribute("", "y0", []float64{r.Y0})
	h.AddAttribute("", "dx", []float64{r.Dx})
	h.AddAttribute("", "dy", []float64{r.Dy})
	h.AddAttribute("", "nx", []int32{int32(r.Nx)})
	h.AddAttribute("", "ny", []int32{int32(r.Ny)})
	h.AddAttribute("", "nodata", []int32{int32(r.NoData)})
	h.AddAttribute("", "data_version", DataVersion)
	h.AddVariable(classVar, []string{"y", "x"}, []int32{0})
	h.AddAttribute(classVar, "description", "category code")
	h.Define()

	b := newBuffer(nil)
	f, err := cdf.Create(b, h)
	if err != nil {
		return nil, fmt.Errorf("rasterio: writing header: %v", err)
	}
	end := f.Header.Lengths(classVar)
	w := f.Writer(classVar, make([]int, len(end)), end)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("rasterio: writing %s: %v", classVar, err)
	}
	return b.Bytes(), nil
}

// Decode reads a raster written by Encode.
func Decode(b []byte) (*habmap.Raster, error) {
	f, err := cdf.Open(newBuffer(b))
	if err != nil {
		return nil, fmt.Errorf("rasterio: reading header: %v", err)
	}
	if v, ok := f.Header.GetAttribute("", "data_version").(string); !ok || v != DataVersion {
		return nil, fmt.Errorf("rasterio: data version %q is incompatible with the required version %s", v, DataVersion)
	}
	f64 := func(name string) (float64, error) {
		v, ok := f.Header.GetAttribute("", name).([]float64)
		if !ok || len(v) != 1 {
			return 0, fmt.Errorf("rasterio: missing attribute %s", name)
		}
		return v[0], nil
	}
	i32 := func(name string) (int32, error) {
		v, ok := f.Header.GetAttribute("", name).([]int32)
		if !ok || len(v) != 1 {
			return 0, fmt.Errorf("rasterio: missing attribute %s", name)
		}
		return v[0], nil
	}

	r := new(habmap.Raster)
	for _, a := range []struct {
		name string
		v    *float64
	}{{"x0", &r.X0}, {"y0", &r.Y0}, {"dx", &r.Dx}, {"dy", &r.Dy}} {
		if *a.v, err = f64(a.name); err != nil {
			return nil, err
		}
	}
	nx, err := i32("nx")
	if err != nil {
		return nil, err
	}
	ny, err := i32("ny")
	if err != nil {
		return nil, err
	}
	noData, err := i32("nodata")
	if err != nil {
		return nil, err
	}
	r.Nx, r.Ny, r.NoData = int(nx), int(ny), int64(noData)

	dims := f.Header.Lengths(classVar)
	if len(dims) != 2 || dims[0] != r.Ny || dims[1] != r.Nx {
		return nil, fmt.Errorf("rasterio: %s dimensions %v do not match the %d×%d grid", classVar, dims, r.Nx, r.Ny)
	}
	data := make([]int32, r.Nx*r.Ny)
	if _, err := f.Reader(classVar, nil, nil).Read(data); err != nil {
		return nil, fmt.Errorf("rasterio: reading %s: %v", classVar, err)
	}
	r.Data = make([]int64, len(data))
	for i, v := range data {
		r.Data[i] = int64(v)
	}
	return r, nil
}
