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

// Package cloud opens the blob storage buckets that hold workspaces.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

var (
	memMu      sync.Mutex
	memBuckets = make(map[string]*blob.Bucket)
)

// OpenBucket returns the blob storage bucket specified by location,
// which must be in the format 'provider://name/path'. The accepted
// providers are "file" for a directory on the local filesystem
// (file:///abs/dir or file://rel/dir), "mem" for an in-memory bucket
// that lives as long as the process, "gs" for Google Cloud Storage, and
// "s3" for AWS S3. For gs and s3 any path after the bucket name is used
// as a key prefix.
func OpenBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("cloud: parsing bucket location: %v", err)
	}
	switch u.Scheme {
	case "file":
		dir := filepath.FromSlash(u.Host + u.Path)
		if dir == "" {
			return nil, fmt.Errorf("cloud: bucket location %q has no directory", location)
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("cloud: creating bucket directory: %v", err)
		}
		return fileblob.OpenBucket(dir, nil)
	case "mem":
		memMu.Lock()
		defer memMu.Unlock()
		key := u.Host + u.Path
		b, ok := memBuckets[key]
		if !ok {
			b = memblob.OpenBucket(nil)
			memBuckets[key] = b
		}
		return b, nil
	case "gs":
		b, err := gsBucket(ctx, u.Hostname())
		if err != nil {
			return nil, err
		}
		return prefixed(b, u.Path), nil
	case "s3":
		b, err := s3Bucket(ctx, u.Hostname())
		if err != nil {
			return nil, err
		}
		return prefixed(b, u.Path), nil
	default:
		return nil, fmt.Errorf("cloud: invalid provider %q", u.Scheme)
	}
}

func prefixed(b *blob.Bucket, path string) *blob.Bucket {
	p := strings.Trim(path, "/")
	if p == "" {
		return b
	}
	return blob.PrefixedBucket(b, p+"/")
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud: google credentials: %v", err)
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. Credentials are read from the
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables and
// the region from AWS_REGION.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: aws session: %v", err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}
