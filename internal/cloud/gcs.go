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

// Package cloud contains data structures and utilities for interacting with Google Cloud services.
// This file defines the internal representation of a Cloud Storage object and
// the parsing of gs:// URIs used to reference model artifacts.
package cloud

import (
	"errors"
	"fmt"
	"strings"
)

// GCSScheme prefixes every Cloud Storage URI.
const GCSScheme = "gs://"

// ErrNotGCSURI is returned by ParseGCSURI for anything that is not gs://bucket/object.
var ErrNotGCSURI = errors.New("not a gs:// URI")

// GCSObject is a simplified, internal representation of a Google Cloud Storage
// object.
type GCSObject struct {
	Bucket   string // The name of the GCS bucket.
	Name     string // The name of the object.
	MIMEType string // The MIME type of the object, when known.
}

// URI renders the object as gs://bucket/name.
func (o *GCSObject) URI() string {
	return GCSScheme + o.Bucket + "/" + o.Name
}

// IsGCSURI reports whether path should be fetched from Cloud Storage.
func IsGCSURI(path string) bool {
	return strings.HasPrefix(path, GCSScheme)
}

// ParseGCSURI splits gs://bucket/path/to/object into its bucket and object name.
func ParseGCSURI(uri string) (*GCSObject, error) {
	if !IsGCSURI(uri) {
		return nil, fmt.Errorf("%w: %q", ErrNotGCSURI, uri)
	}
	bucket, name, found := strings.Cut(strings.TrimPrefix(uri, GCSScheme), "/")
	if !found || bucket == "" || name == "" || strings.HasSuffix(name, "/") {
		return nil, fmt.Errorf("%w: %q must name a bucket and an object", ErrNotGCSURI, uri)
	}
	return &GCSObject{Bucket: bucket, Name: name}, nil
}
