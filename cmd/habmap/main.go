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

// Command habmap is a command-line interface for the habmap staged
// raster classification engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spatialmodel/habmap"
	"github.com/spatialmodel/habmap/habmaputil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	habmaputil.Root.SilenceErrors = true
	if err := habmaputil.Root.ExecuteContext(ctx); err != nil {
		var se *habmap.StageError
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "habmap: stage %d (%s) failed; rerun to resume from saved progress\n", se.Index, se.Name)
		}
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
