// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cloud provides components for interacting with Google Cloud services.
// This file resolves model artifact locations. Classifier graphs and their
// metadata may live next to the binary or in a Cloud Storage bucket; the
// ArtifactFetcher turns either form into a local path before the ONNX sessions
// are created.
//
// Logic Flow:
//  1. A local path is returned untouched.
//  2. A gs:// URI is mapped to <cache dir>/<bucket>/<object>.
//  3. If that file already exists it is reused.
//  4. Otherwise the object is streamed into a temporary file next to the
//     target, retried with exponential backoff, and renamed into place once
//     complete so a partial download is never mistaken for a cached artifact.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/cenkalti/backoff/v4"
)

// ObjectOpener opens a Cloud Storage object for reading.
type ObjectOpener func(ctx context.Context, obj *GCSObject) (io.ReadCloser, error)

// StorageOpener adapts a storage client to an ObjectOpener.
func StorageOpener(client *storage.Client) ObjectOpener {
	return func(ctx context.Context, obj *GCSObject) (io.ReadCloser, error) {
		return client.Bucket(obj.Bucket).Object(obj.Name).NewReader(ctx)
	}
}

// ArtifactFetcher resolves local paths and gs:// URIs to files on disk.
type ArtifactFetcher struct {
	open            ObjectOpener
	cacheDir        string
	initialInterval time.Duration
	maxElapsed      time.Duration
}

// NewArtifactFetcher creates a fetcher. open may be nil when no artifact is
// stored in Cloud Storage; resolving a gs:// URI then fails.
func NewArtifactFetcher(open ObjectOpener, cfg ModelCache) *ArtifactFetcher {
	return &ArtifactFetcher{
		open:            open,
		cacheDir:        cfg.Dir,
		initialInterval: time.Duration(cfg.InitialIntervalMs) * time.Millisecond,
		maxElapsed:      time.Duration(cfg.MaxElapsedSeconds) * time.Second,
	}
}

// Resolve returns a local file path for the artifact at location.
func (f *ArtifactFetcher) Resolve(ctx context.Context, location string) (string, error) {
	if !IsGCSURI(location) {
		return location, nil
	}
	obj, err := ParseGCSURI(location)
	if err != nil {
		return "", err
	}
	if f.open == nil {
		return "", fmt.Errorf("cannot fetch %s: no storage client configured", location)
	}

	root, err := filepath.Abs(f.cacheDir)
	if err != nil {
		return "", fmt.Errorf("resolving model cache dir: %w", err)
	}
	target := filepath.Join(root, obj.Bucket, filepath.FromSlash(obj.Name))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("object name %q escapes the model cache", obj.Name)
	}
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		slog.Debug("using cached model artifact", "uri", location, "path", target)
		return target, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("creating model cache dir: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	if f.initialInterval > 0 {
		policy.InitialInterval = f.initialInterval
	}
	if f.maxElapsed > 0 {
		policy.MaxElapsedTime = f.maxElapsed
	}

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		err := f.download(ctx, obj, target)
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return backoff.Permanent(err)
		}
		slog.Warn("model artifact download failed", "uri", location, "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", location, err)
	}
	slog.Info("fetched model artifact", "uri", location, "path", target, "attempts", attempt)
	return target, nil
}

func (f *ArtifactFetcher) download(ctx context.Context, obj *GCSObject, target string) error {
	reader, err := f.open(ctx, obj)
	if err != nil {
		return err
	}
	defer reader.Close()

	tmp, err := os.CreateTemp(filepath.Dir(target), ".download-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, reader); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), target)
}
