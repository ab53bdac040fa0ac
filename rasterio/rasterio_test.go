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
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/kr/pretty"
	"gocloud.dev/blob/memblob"

	"github.com/spatialmodel/habmap"
)

func testRaster() *habmap.Raster {
	r := habmap.NewRasterFrom(habmap.DefaultNoData, [][]int64{
		{1, 2, 2, 1, 7},
		{1, habmap.DefaultNoData, 2, 2, 7},
		{3, 3, 1, 1, 7},
	})
	r.X0, r.Y0 = -500, 1000
	r.Dx, r.Dy = 30, 30
	return r
}

func TestCodec(t *testing.T) {
	r := testRaster()
	b, err := Encode(r)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(r, r2) {
		t.Errorf("decoded raster differs: %v", pretty.Diff(r, r2))
	}

	t.Run("overflow", func(t *testing.T) {
		big := testRaster()
		big.Set(1<<40, 0, 0)
		if _, err := Encode(big); err == nil || !strings.Contains(err.Error(), "32 bits") {
			t.Errorf("want overflow error, have %v", err)
		}
	})
	t.Run("garbage", func(t *testing.T) {
		if _, err := Decode([]byte("not a netcdf file")); err == nil {
			t.Error("want error decoding garbage")
		}
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memblob.OpenBucket(nil), "workspace/")
	r := testRaster()
	for _, name := range []string{"seed", "landfire", "seed_classified"} {
		if err := s.Write(ctx, name, r); err != nil {
			t.Fatal(err)
		}
	}
	// Objects that are not rasters are ignored.
	if err := s.Bucket.WriteAll(ctx, "workspace/notes.txt", []byte("x"), nil); err != nil {
		t.Fatal(err)
	}

	names, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"landfire", "seed", "seed_classified"}; !reflect.DeepEqual(names, want) {
		t.Errorf("list: have %v, want %v", names, want)
	}

	r2, err := s.Read(ctx, "landfire")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Equal(r2) {
		t.Errorf("read raster differs: %v", pretty.Diff(r, r2))
	}

	if err := s.Delete(ctx, "landfire"); err != nil {
		t.Fatal(err)
	}
	if ok, err := s.Exists(ctx, "landfire"); err != nil || ok {
		t.Errorf("exists after delete: %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "landfire"); err != nil {
		t.Errorf("deleting a missing raster: %v", err)
	}
	if _, err := s.Read(ctx, "landfire"); !IsNotExist(err) {
		t.Errorf("want not-exist error, have %v", err)
	}
}

func TestMosaic(t *testing.T) {
	r := testRaster()
	var parts []*habmap.Raster
	for _, tile := range habmap.Tiles(r.Nx, r.Ny, 2, 2) {
		parts = append(parts, r.Window(tile))
	}
	// Order does not matter.
	parts[0], parts[len(parts)-1] = parts[len(parts)-1], parts[0]
	o, err := Mosaic{}.Mosaic(parts)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Equal(o) {
		t.Errorf("mosaic differs: %v", pretty.Diff(r, o))
	}

	tiles := habmap.Tiles(r.Nx, r.Ny, 2, 2)
	tests := []struct {
		name  string
		parts []*habmap.Raster
		err   string
	}{
		{
			name:  "overlap",
			parts: []*habmap.Raster{r.Window(tiles[0]), r.Window(habmap.Tile{I0: 1, J0: tiles[0].J0, I1: 3, J1: tiles[0].J1})},
			err:   "overlap",
		},
		{
			name:  "gap",
			parts: []*habmap.Raster{r.Window(tiles[0]), r.Window(tiles[2])},
			err:   "cover",
		},
		{
			name:  "empty",
			parts: nil,
			err:   "no rasters",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Mosaic{}.Mosaic(test.parts)
			if err == nil || !strings.Contains(err.Error(), test.err) {
				t.Errorf("want error containing %q, have %v", test.err, err)
			}
		})
	}
}
