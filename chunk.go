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
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// TileResult is the classified output of one tile.
type TileResult struct {
	Index    int // position of the tile in Tiler order
	Tile     Tile
	Raster   *Raster
	Coverage Coverage
}

// A TileSink receives tile results. Put may be called concurrently from
// several workers, each with a different tile.
type TileSink interface {
	Put(ctx context.Context, res TileResult) error
}

// TileSinkFunc adapts a function to the TileSink interface.
type TileSinkFunc func(ctx context.Context, res TileResult) error

// Put calls f.
func (f TileSinkFunc) Put(ctx context.Context, res TileResult) error { return f(ctx, res) }

// AssembleSink pastes tile results into one raster.
type AssembleSink struct {
	Out *Raster
}

// NewAssembleSink returns a sink whose output raster has the grid of r
// and starts out as all no-data.
func NewAssembleSink(r *Raster) *AssembleSink {
	return &AssembleSink{Out: NewRaster(r.Nx, r.Ny, r.X0, r.Y0, r.Dx, r.Dy, r.NoData)}
}

// Put copies res into the output. Tiles are disjoint so concurrent calls
// never write the same cells.
func (s *AssembleSink) Put(_ context.Context, res TileResult) error {
	s.Out.paste(res.Tile, res.Raster)
	return nil
}

// Chunker runs the combine and reclassify steps of a stage tile by tile.
type Chunker struct {
	// TileNx and TileNy are the maximum tile dimensions in cells.
	// Values <= 0 mean the whole extent.
	TileNx, TileNy int

	// Workers is the number of tiles processed at once. Values <= 0
	// mean runtime.GOMAXPROCS(0).
	Workers int
}

// Tiler returns a Tiler for the grid of r with the receiver's tile size.
func (c Chunker) Tiler(r *Raster) *Tiler { return NewTiler(r.Nx, r.Ny, c.TileNx, c.TileNy) }

// Process combines a and b with the scale of t and reclassifies the
// result with t, one tile at a time, sending each tile's output to sink.
// Tiles whose index is below from are skipped; they are assumed to have
// been processed by an earlier run. The returned Coverage covers only
// the tiles processed by this call.
//
// Cancellation is checked before each tile is started. Errors are
// returned as *TileError.
func (c Chunker) Process(ctx context.Context, a, b *Raster, t *RemapTable, policy FallbackPolicy, from int, sink TileSink) (Coverage, error) {
	if err := a.sameGrid(b); err != nil {
		return Coverage{}, err
	}
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu  sync.Mutex
		cov Coverage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	tl := c.Tiler(a)
	for k := 0; ; k++ {
		tile, ok := tl.Next()
		if !ok {
			break
		}
		if k < from {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		k, tile := k, tile
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := processTile(a, b, t, policy, tile)
			if err != nil {
				return &TileError{Index: k, Tile: tile, Err: err}
			}
			res.Index = k
			if err := sink.Put(gctx, res); err != nil {
				return &TileError{Index: k, Tile: tile, Err: err}
			}
			mu.Lock()
			cov.merge(res.Coverage)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return cov, err
	}
	// The group context is also cancelled when the parent is; report that
	// even if every started tile finished.
	return cov, ctx.Err()
}

// Run processes every tile of a and b and returns the assembled output.
func (c Chunker) Run(ctx context.Context, a, b *Raster, t *RemapTable, policy FallbackPolicy) (*Raster, Coverage, error) {
	sink := NewAssembleSink(a)
	cov, err := c.Process(ctx, a, b, t, policy, 0, sink)
	if err != nil {
		return nil, cov, err
	}
	return sink.Out, cov, nil
}

func processTile(a, b *Raster, t *RemapTable, policy FallbackPolicy, tile Tile) (TileResult, error) {
	composite, err := Combine(a.Window(tile), b.Window(tile), t.Scale())
	if err != nil {
		return TileResult{}, err
	}
	out, cov := Reclassify(composite, t, policy)
	out.setNoData(a.NoData)
	return TileResult{Tile: tile, Raster: out, Coverage: cov}, nil
}
