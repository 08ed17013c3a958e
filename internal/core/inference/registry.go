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

// This file defines the Registry, the holder of the four long lived model
// handles.
//
// Logic Flow (LoadRegistry):
//  1. Initialize the ONNX Runtime environment.
//  2. For general, crime and image, in that order: resolve the model and
//     metadata locations to local files (downloading gs:// artifacts), load
//     the metadata and open an ONNX session.
//  3. Build the text generator for the configured backend.
//  4. Any failure closes what was already opened and is returned; the caller
//     treats it as fatal.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// Classifier names in the configuration.
const (
	GeneralClassifier = string(model.ModeGeneral)
	CrimeClassifier   = string(model.ModeCrime)
	ImageClassifier   = string(model.ModeImage)
)

var (
	// ErrUnknownClassifier is returned when a required classifier is not configured.
	ErrUnknownClassifier = errors.New("classifier not configured")
	// ErrUnknownBackend is returned for an unsupported generator backend.
	ErrUnknownBackend = errors.New("unknown text generator backend")
	// ErrMissingHandle is returned when a registry is built with a nil handle.
	ErrMissingHandle = errors.New("model handle is nil")
)

type closer interface {
	Close()
}

// Registry holds the classifier and generator handles. Its fields are set once
// by the constructor and only read afterwards.
type Registry struct {
	general   Classifier
	crime     Classifier
	image     Classifier
	generator TextGenerator
	names     []string
	runtime   bool // The ONNX environment is owned by this registry.
}

// NewRegistry wraps already built handles. It is used by LoadRegistry and by
// tests that inject fakes.
func NewRegistry(general Classifier, crime Classifier, image Classifier, generator TextGenerator) (*Registry, error) {
	switch {
	case general == nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingHandle, GeneralClassifier)
	case crime == nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingHandle, CrimeClassifier)
	case image == nil:
		return nil, fmt.Errorf("%w: %s", ErrMissingHandle, ImageClassifier)
	case generator == nil:
		return nil, fmt.Errorf("%w: generator", ErrMissingHandle)
	}
	return &Registry{
		general:   general,
		crime:     crime,
		image:     image,
		generator: generator,
		names:     []string{GeneralClassifier, CrimeClassifier, ImageClassifier, "generator"},
	}, nil
}

// General returns the general action recognition classifier.
func (r *Registry) General() Classifier { return r.general }

// Crime returns the crime recognition classifier.
func (r *Registry) Crime() Classifier { return r.crime }

// Image returns the image classifier.
func (r *Registry) Image() Classifier { return r.image }

// Generator returns the description generator.
func (r *Registry) Generator() TextGenerator { return r.generator }

// Names lists the loaded handles.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Close releases every handle that holds native resources, then the ONNX
// Runtime environment if this registry created it.
func (r *Registry) Close() {
	for _, h := range []interface{}{r.general, r.crime, r.image, r.generator} {
		if c, ok := h.(closer); ok {
			c.Close()
		}
	}
	if r.runtime {
		if err := DestroyRuntime(); err != nil {
			slog.Error("failed to destroy onnx runtime", "error", err)
		}
	}
}

// LoadRegistry builds every handle named by the configuration.
//
// Inputs:
//   - ctx: Bounds artifact downloads.
//   - config: The application configuration.
//   - clients: Cloud clients; Artifacts resolves model locations and
//     DescriptionModel backs the genai generator.
//
// Outputs:
//   - *Registry: The loaded registry.
//   - error: The first failure. Nothing is left open when it is returned.
func LoadRegistry(ctx context.Context, config *cloud.Config, clients *cloud.ServiceClients) (*Registry, error) {
	if err := InitRuntime(config.OnnxRuntime); err != nil {
		return nil, err
	}

	frames := NewFrameSampler(config.FFMpeg.CommandPath, config.Upload.ScratchDir)
	opened := make([]*OnnxClassifier, 0, 3)
	fail := func(err error) (*Registry, error) {
		for _, c := range opened {
			c.Close()
		}
		if derr := DestroyRuntime(); derr != nil {
			slog.Error("failed to destroy onnx runtime", "error", derr)
		}
		return nil, err
	}

	wantKinds := []struct {
		name string
		kind string
	}{
		{GeneralClassifier, cloud.KindVideo},
		{CrimeClassifier, cloud.KindVideo},
		{ImageClassifier, cloud.KindImage},
	}
	for _, want := range wantKinds {
		c, err := loadClassifier(ctx, config, clients.Artifacts, want.name, want.kind, frames)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, c)
	}

	generator, err := newTextGenerator(config.Generator, clients)
	if err != nil {
		return fail(err)
	}

	registry, err := NewRegistry(opened[0], opened[1], opened[2], generator)
	if err != nil {
		return fail(err)
	}
	registry.runtime = true
	slog.Info("model registry loaded", "handles", registry.Names(), "generator_backend", config.Generator.Backend)
	return registry, nil
}

func loadClassifier(ctx context.Context, config *cloud.Config, artifacts *cloud.ArtifactFetcher, name string, kind string, frames *FrameSampler) (*OnnxClassifier, error) {
	entry, ok := config.Classifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClassifier, name)
	}
	if entry.Kind != "" && entry.Kind != kind {
		return nil, fmt.Errorf("classifier %s must be of kind %s, configured as %s", name, kind, entry.Kind)
	}
	modelPath, err := artifacts.Resolve(ctx, entry.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", name, err)
	}
	metadataPath, err := artifacts.Resolve(ctx, entry.MetadataPath)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", name, err)
	}
	meta, err := LoadMetadata(metadataPath, kind)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", name, err)
	}
	var sampler *FrameSampler
	if kind == cloud.KindVideo {
		sampler = frames
	}
	return NewOnnxClassifier(name, kind, modelPath, meta, entry.TopK, config.OnnxRuntime, sampler)
}

func newTextGenerator(cfg cloud.TextGeneratorModel, clients *cloud.ServiceClients) (TextGenerator, error) {
	switch cfg.Backend {
	case cloud.BackendGenAI:
		if clients.DescriptionModel == nil {
			return nil, fmt.Errorf("genai generator requested but no genai client was created")
		}
		return NewGenAIGenerator(clients.DescriptionModel), nil
	case cloud.BackendOpenAI:
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
