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

// Package test provides utility functions, fakes and sample media to support
// the application's test suite. It loads the test configuration and stands in
// for the model handles and the event publisher, so the request path can be
// exercised without ONNX Runtime, ffmpeg or network access.
package test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// StateManager acts as a simple in-memory cache for the application
// configuration during test runs.
type StateManager struct {
	mu     sync.Mutex
	config *cloud.Config
}

var state = &StateManager{}

// HandleErr fails the test if err is not nil.
func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// findConfigDir walks up from the working directory to the module's configs
// directory, so tests can load it from any package.
func findConfigDir() string {
	dir, err := os.Getwd()
	if err != nil {
		return cloud.DefaultConfigPrefix
	}
	for {
		candidate := filepath.Join(dir, cloud.DefaultConfigPrefix)
		if _, err := os.Stat(filepath.Join(candidate, cloud.ConfigFileBaseName+cloud.ConfigFileExtension)); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cloud.DefaultConfigPrefix
		}
		dir = parent
	}
}

// SetupOS points the configuration loader at the test configuration files.
func SetupOS() (err error) {
	if err = os.Setenv(cloud.EnvConfigFilePrefix, findConfigDir()); err != nil {
		return err
	}
	return os.Setenv(cloud.EnvConfigRuntime, "test")
}

// GetConfig is a singleton accessor for the test configuration.
//
// Returns:
//   - A pointer to the loaded and cached cloud.Config struct.
func GetConfig() *cloud.Config {
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup environment for test: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load test configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// FakeClassifier returns canned predictions.
type FakeClassifier struct {
	mu          sync.Mutex
	Predictions []model.Prediction
	Err         error
	Delay       time.Duration // Blocks this long, or until ctx ends.
	Paths       []string      // Paths seen, in call order.
}

// Classify implements inference.Classifier.
func (f *FakeClassifier) Classify(ctx context.Context, path string) ([]model.Prediction, error) {
	f.mu.Lock()
	f.Paths = append(f.Paths, path)
	f.mu.Unlock()
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Predictions, nil
}

// Calls returns the number of Classify calls.
func (f *FakeClassifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Paths)
}

// FakeGenerator returns canned text, optionally prefixed by the prompt the
// way a causal language model echoes its input.
type FakeGenerator struct {
	mu         sync.Mutex
	Text       string
	Err        error
	EchoPrompt bool
	Prompts    []string
	Options    []inference.GenerationOptions
}

// Generate implements inference.TextGenerator.
func (f *FakeGenerator) Generate(ctx context.Context, prompt string, opts inference.GenerationOptions) (string, error) {
	f.mu.Lock()
	f.Prompts = append(f.Prompts, prompt)
	f.Options = append(f.Options, opts)
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.EchoPrompt {
		return prompt + " " + f.Text, nil
	}
	return f.Text, nil
}

// Calls returns the number of Generate calls.
func (f *FakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}

// PublishedEvent is one message captured by FakePublisher.
type PublishedEvent struct {
	Data       []byte
	Attributes map[string]string
}

// FakePublisher captures published events.
type FakePublisher struct {
	mu     sync.Mutex
	Err    error
	Events []PublishedEvent
}

// Publish implements cloud.EventPublisher.
func (f *FakePublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Events = append(f.Events, PublishedEvent{Data: data, Attributes: attributes})
	return nil
}

// Published returns a copy of the captured events.
func (f *FakePublisher) Published() []PublishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PublishedEvent, len(f.Events))
	copy(out, f.Events)
	return out
}

// FakeHandles groups the fakes behind a registry.
type FakeHandles struct {
	General   *FakeClassifier
	Crime     *FakeClassifier
	Image     *FakeClassifier
	Generator *FakeGenerator
}

// NewFakeHandles returns fakes seeded with the example predictions.
func NewFakeHandles() *FakeHandles {
	return &FakeHandles{
		General:   &FakeClassifier{Predictions: model.GetExampleVideoPredictions()},
		Crime:     &FakeClassifier{Predictions: []model.Prediction{{Label: "Fighting", Score: 0.71349}, {Label: "Normal", Score: 0.2865}}},
		Image:     &FakeClassifier{Predictions: model.GetExampleImagePredictions()},
		Generator: &FakeGenerator{Text: "A group of people playing basketball on an outdoor court.", EchoPrompt: true},
	}
}

// Registry wraps the fakes in an inference.Registry.
func (h *FakeHandles) Registry(t *testing.T) *inference.Registry {
	t.Helper()
	registry, err := inference.NewRegistry(h.General, h.Crime, h.Image, h.Generator)
	HandleErr(err, t)
	return registry
}

// PNGBytes encodes a w x h gray PNG.
func PNGBytes(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// MP4Bytes returns the leading ftyp box of an ISO base media file, enough for
// content sniffing.
func MP4Bytes() []byte {
	out := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	}
	return append(out, make([]byte, 64)...)
}

// MultipartBody builds a multipart/form-data body. An empty fileName omits the
// file part.
//
// Returns:
//   - The encoded body and its Content-Type header value.
func MultipartBody(fields map[string]string, fileField string, fileName string, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		_ = writer.WriteField(k, v)
	}
	if fileName != "" {
		part, _ := writer.CreateFormFile(fileField, fileName)
		_, _ = part.Write(content)
	}
	_ = writer.Close()
	return body, writer.FormDataContentType()
}
