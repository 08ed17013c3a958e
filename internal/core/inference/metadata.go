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

// Package inference wraps the engines that do the actual work of an analysis:
// ONNX Runtime sessions for the three classifiers, ffmpeg for frame sampling,
// and a generative model for descriptions. It also owns the registry that
// holds those handles for the life of the process and the worker pool that
// runs calls against them.
package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
)

// Resize strategies understood by the preprocessor.
const (
	ResizeStretch          = "stretch"            // Scale straight to image_size x image_size.
	ResizeShortestEdgeCrop = "shortest_edge_crop" // Scale the short side to image_size, then center crop.
)

const (
	defaultImageSize = 224
	defaultNumFrames = 16
)

var (
	imagenetMean  = []float32{0.485, 0.456, 0.406}
	imagenetStd   = []float32{0.229, 0.224, 0.225}
	halfMeanStd   = []float32{0.5, 0.5, 0.5}
	ErrNoClasses  = errors.New("classifier metadata lists no classes")
	ErrBadResize  = errors.New("unknown resize strategy")
	ErrBadChannel = errors.New("mean and std must have three values")
)

// Metadata describes how a classifier graph is fed and how its output is read.
// It is exported next to the .onnx file by the model conversion script.
type Metadata struct {
	Classes    []string  `json:"classes"`     // Label of each output index.
	InputName  string    `json:"input_name"`  // Graph input, first input when empty.
	OutputName string    `json:"output_name"` // Graph output, first output when empty.
	InputShape []int64   `json:"input_shape"` // Full input shape including the batch dimension.
	ImageSize  int       `json:"image_size"`  // Square side fed to the model.
	NumFrames  int       `json:"num_frames"`  // Frames per clip, video models only.
	Resize     string    `json:"resize"`
	Mean       []float32 `json:"mean"`
	Std        []float32 `json:"std"`
	TopK       int       `json:"top_k"`
}

// LoadMetadata reads a metadata file and fills in the defaults of the given
// classifier kind: ViT style stretching with 0.5 normalization for images,
// VideoMAE style shortest edge cropping with ImageNet normalization and 16
// frames for video.
//
// Inputs:
//   - path: Local path of the metadata JSON file.
//   - kind: cloud.KindImage or cloud.KindVideo.
//
// Outputs:
//   - *Metadata: The validated metadata.
//   - error: An error if the file cannot be read, parsed or is inconsistent.
func LoadMetadata(path string, kind string) (*Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	meta := &Metadata{}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", path, err)
	}
	meta.applyDefaults(kind)
	if err := meta.validate(kind); err != nil {
		return nil, fmt.Errorf("invalid metadata %s: %w", path, err)
	}
	return meta, nil
}

func (m *Metadata) applyDefaults(kind string) {
	if m.ImageSize <= 0 {
		m.ImageSize = defaultImageSize
	}
	if m.TopK <= 0 {
		m.TopK = 5
	}
	if kind == cloud.KindVideo {
		if m.NumFrames <= 0 {
			m.NumFrames = defaultNumFrames
		}
		if m.Resize == "" {
			m.Resize = ResizeShortestEdgeCrop
		}
		if len(m.Mean) == 0 {
			m.Mean = imagenetMean
		}
		if len(m.Std) == 0 {
			m.Std = imagenetStd
		}
	} else {
		if m.Resize == "" {
			m.Resize = ResizeStretch
		}
		if len(m.Mean) == 0 {
			m.Mean = halfMeanStd
		}
		if len(m.Std) == 0 {
			m.Std = halfMeanStd
		}
	}
	if len(m.InputShape) == 0 {
		m.InputShape = m.expectedShape(kind)
	}
}

func (m *Metadata) expectedShape(kind string) []int64 {
	size := int64(m.ImageSize)
	if kind == cloud.KindVideo {
		return []int64{1, int64(m.NumFrames), 3, size, size}
	}
	return []int64{1, 3, size, size}
}

func (m *Metadata) validate(kind string) error {
	if len(m.Classes) == 0 {
		return ErrNoClasses
	}
	if m.Resize != ResizeStretch && m.Resize != ResizeShortestEdgeCrop {
		return fmt.Errorf("%w: %q", ErrBadResize, m.Resize)
	}
	if len(m.Mean) != 3 || len(m.Std) != 3 {
		return ErrBadChannel
	}
	for _, s := range m.Std {
		if s == 0 {
			return errors.New("std values must be non-zero")
		}
	}
	want := m.expectedShape(kind)
	if len(m.InputShape) != len(want) {
		return fmt.Errorf("input_shape %v does not match a %s model, want %v", m.InputShape, kind, want)
	}
	for i := range want {
		if m.InputShape[i] != want[i] {
			return fmt.Errorf("input_shape %v does not match image_size/num_frames, want %v", m.InputShape, want)
		}
	}
	return nil
}

// InputLen is the number of float32 values in one input tensor.
func (m *Metadata) InputLen() int {
	n := 1
	for _, d := range m.InputShape {
		n *= int(d)
	}
	return n
}
