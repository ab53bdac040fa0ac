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
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/spatialmodel/habmap"
)

// Ext is the file extension of stored rasters.
const Ext = ".ncf"

// Store keeps rasters as netCDF files in a blob storage bucket, one file
// per raster named <Prefix><name>.ncf. Transient storage errors are
// retried with exponential backoff.
type Store struct {
	Bucket *blob.Bucket

	// Prefix is prepended to every key, for example "workspace/".
	Prefix string

	// NewBackOff returns the backoff policy for one operation. It
	// defaults to an exponential backoff giving up after a minute.
	NewBackOff func() backoff.BackOff

	Log logrus.FieldLogger
}

// NewStore returns a store keeping rasters under prefix in bucket.
func NewStore(bucket *blob.Bucket, prefix string) *Store {
	return &Store{Bucket: bucket, Prefix: prefix}
}

func (s *Store) key(name string) string { return s.Prefix + name + Ext }

func (s *Store) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// retry runs op until it succeeds, returns a permanent error, or the
// backoff policy or ctx gives up.
func (s *Store) retry(ctx context.Context, what string, op func() error) error {
	var b backoff.BackOff
	if s.NewBackOff != nil {
		b = s.NewBackOff()
	} else {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = time.Minute
		b = eb
	}
	return backoff.RetryNotify(
		func() error {
			err := op()
			if err == nil {
				return nil
			}
			if ctx.Err() != nil || gcerrors.Code(err) == gcerrors.NotFound ||
				gcerrors.Code(err) == gcerrors.InvalidArgument {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(b, ctx),
		func(err error, d time.Duration) {
			s.log().WithField("op", what).Warnf("rasterio: %v: retrying in %v", err, d)
		},
	)
}

// Read returns the raster stored under name.
func (s *Store) Read(ctx context.Context, name string) (*habmap.Raster, error) {
	var data []byte
	err := s.retry(ctx, "read "+name, func() error {
		var err error
		data, err = s.Bucket.ReadAll(ctx, s.key(name))
		return err
	})
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("rasterio: raster %q is not in the store: %w", name, err)
		}
		return nil, fmt.Errorf("rasterio: reading raster %q: %w", name, err)
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("rasterio: decoding raster %q: %w", name, err)
	}
	return r, nil
}

// Write stores r under name, replacing any raster already there. The
// stored object only becomes visible once it is completely written.
func (s *Store) Write(ctx context.Context, name string, r *habmap.Raster) error {
	data, err := Encode(r)
	if err != nil {
		return fmt.Errorf("rasterio: encoding raster %q: %w", name, err)
	}
	return s.retry(ctx, "write "+name, func() error {
		w, err := s.Bucket.NewWriter(ctx, s.key(name), &blob.WriterOptions{
			ContentType: "application/x-netcdf",
		})
		if err != nil {
			return fmt.Errorf("rasterio: creating writer for %q: %w", name, err)
		}
		if _, err = io.Copy(w, bytes.NewReader(data)); err != nil {
			w.Close()
			return fmt.Errorf("rasterio: copying raster %q: %w", name, err)
		}
		if err = w.Close(); err != nil {
			return fmt.Errorf("rasterio: writing raster %q: %w", name, err)
		}
		return nil
	})
}

// List returns the names of the stored rasters in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.retry(ctx, "list", func() error {
		names = names[:0]
		iter := s.Bucket.List(&blob.ListOptions{Prefix: s.Prefix, Delimiter: "/"})
		for {
			obj, err := iter.Next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if obj.IsDir || !strings.HasSuffix(obj.Key, Ext) {
				continue
			}
			names = append(names, strings.TrimSuffix(strings.TrimPrefix(obj.Key, s.Prefix), Ext))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("rasterio: listing rasters: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the raster stored under name. Deleting a raster that
// does not exist is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.retry(ctx, "delete "+name, func() error {
		return s.Bucket.Delete(ctx, s.key(name))
	})
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("rasterio: deleting raster %q: %w", name, err)
	}
	return nil
}

// Exists reports whether a raster is stored under name.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := s.retry(ctx, "exists "+name, func() error {
		var err error
		ok, err = s.Bucket.Exists(ctx, s.key(name))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("rasterio: checking raster %q: %w", name, err)
	}
	return ok, nil
}

// IsNotExist reports whether err reports a raster missing from a store.
func IsNotExist(err error) bool {
	return err != nil && gcerrors.Code(err) == gcerrors.NotFound
}
