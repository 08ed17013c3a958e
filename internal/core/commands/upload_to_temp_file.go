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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that spools a request's upload into a private scratch file.
//
// Logic Flow:
//  1. Receives an UploadSource from the context.
//  2. Reads the leading bytes and sniffs the content type with `filetype`.
//     The extension of the scratch file comes from the sniffed type, or from
//     the client's file name when the type is unknown. The client's file name
//     never contributes a directory.
//  3. Creates `<scratch dir>/temp_<uuid><ext>` exclusively and registers it
//     with the context for removal before any byte is written, so a partial
//     copy is cleaned up as well.
//  4. Streams the rest of the upload into the file.
//  5. Places a *model.Upload describing the file in the output parameter and
//     under GetUploadParameterName().
package commands

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

const (
	ScratchFilePrefix = "temp_"
	sniffLen          = 261 // Header size filetype needs to recognize every type it knows.
)

var safeExtension = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// UploadSource is the file part of an analysis request.
type UploadSource struct {
	FileName string                        // Client supplied name, informational only.
	Open     func() (io.ReadCloser, error) // Opens the uploaded content.
}

// GetUploadParameterName returns the key under which the spooled *model.Upload
// is kept for the rest of the request.
func GetUploadParameterName() string {
	return "__UPLOAD__"
}

// UploadToTempFile is a command that copies an upload to a unique scratch file.
type UploadToTempFile struct {
	cor.BaseCommand
	scratchDir string // Parent directory of the scratch files, os.TempDir() when empty.
}

// NewUploadToTempFile is the constructor for the UploadToTempFile command.
//
// Inputs:
//   - name: A string name for this command instance, used for logging and telemetry.
//   - scratchDir: The directory scratch files are created in.
//
// Outputs:
//   - *UploadToTempFile: A pointer to the newly instantiated command.
func NewUploadToTempFile(name string, scratchDir string) *UploadToTempFile {
	return &UploadToTempFile{BaseCommand: *cor.NewBaseCommand(name), scratchDir: scratchDir}
}

// ScratchExtension picks the extension of a scratch file from the sniffed
// header, falling back to a sanitized extension of the client's file name.
func ScratchExtension(head []byte, fileName string) (ext string, mimeType string) {
	if kind, err := filetype.Match(head); err == nil && kind != filetype.Unknown {
		return "." + kind.Extension, kind.MIME.Value
	}
	ext = strings.ToLower(filepath.Ext(filepath.Base(fileName)))
	if !safeExtension.MatchString(ext) {
		ext = ""
	}
	return ext, ""
}

// Execute spools the upload.
//
// Inputs:
//   - context: The shared `cor.Context` for this workflow execution.
func (c *UploadToTempFile) Execute(context cor.Context) {
	source := context.Get(c.GetInputParam()).(*UploadSource)

	reader, err := source.Open()
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer reader.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		c.Fail(context, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	head = head[:n]
	ext, mimeType := ScratchExtension(head, source.FileName)

	dir := c.scratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, ScratchFilePrefix+uuid.NewString()+ext)
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		c.Fail(context, fmt.Errorf("could not create scratch file: %w", err))
		return
	}
	context.AddTempFile(path)

	written, err := io.Copy(file, io.MultiReader(bytes.NewReader(head), reader))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to copy upload to scratch file, %d bytes written: %w", written, err))
		return
	}

	upload := &model.Upload{
		Path:        path,
		FileName:    source.FileName,
		ContentType: mimeType,
		Size:        written,
	}
	slog.Debug("upload spooled", "path", path, "content_type", mimeType, "bytes", written)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetUploadParameterName(), upload)
	context.Add(c.GetOutputParam(), upload)
}
