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

// This file runs image and video classifiers exported to ONNX.
//
// Each OnnxClassifier owns one AdvancedSession bound to a fixed input and
// output tensor. Decoding, frame sampling and normalization happen outside the
// session lock; only the copy into the input tensor, the Run call and the copy
// out of the output tensor are serialized.
package inference

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
	ort "github.com/yalue/onnxruntime_go"
)

// Classifier ranks the classes of the media file at path. The returned list is
// sorted by descending probability and holds at most the handle's top_k
// entries.
type Classifier interface {
	Classify(ctx context.Context, path string) ([]model.Prediction, error)
}

var runtimeMu sync.Mutex

// InitRuntime loads the ONNX Runtime shared library and creates its
// environment. Calling it again after a successful call is a no-op.
func InitRuntime(cfg cloud.OnnxRuntime) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("onnx init environment: %w", err)
	}
	slog.Info("onnx runtime initialized", "library", cfg.LibraryPath)
	return nil
}

// DestroyRuntime tears the ONNX Runtime environment down. Every session must
// be destroyed first.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// OnnxClassifier is a Classifier backed by an ONNX Runtime session.
type OnnxClassifier struct {
	mu      sync.Mutex
	name    string
	kind    string
	topK    int
	meta    *Metadata
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	frames  *FrameSampler // nil for image classifiers.
}

// NewOnnxClassifier is the constructor for OnnxClassifier.
//
// Inputs:
//   - name: The handle name, used in logs and errors.
//   - kind: cloud.KindImage or cloud.KindVideo.
//   - modelPath: Local path of the .onnx graph.
//   - meta: Loaded metadata for the graph.
//   - topK: Number of predictions returned, meta.TopK when zero.
//   - rt: Runtime settings applied to the session.
//   - frames: The frame sampler, required for video classifiers.
//
// Outputs:
//   - *OnnxClassifier: A ready to use classifier.
//   - error: An error if the session or its tensors cannot be created.
func NewOnnxClassifier(name string, kind string, modelPath string, meta *Metadata, topK int, rt cloud.OnnxRuntime, frames *FrameSampler) (*OnnxClassifier, error) {
	if kind == cloud.KindVideo && frames == nil {
		return nil, fmt.Errorf("classifier %s: video classifiers need a frame sampler", name)
	}
	if topK <= 0 {
		topK = meta.TopK
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: onnx get input/output info: %w", name, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("classifier %s: onnx model has no inputs or outputs", name)
	}
	inputName := meta.InputName
	if inputName == "" {
		inputName = inputs[0].Name
	}
	outputName := meta.OutputName
	if outputName == "" {
		outputName = outputs[0].Name
	}
	if dims := outputs[0].Dimensions; len(dims) > 0 {
		if last := dims[len(dims)-1]; last > 0 && int(last) != len(meta.Classes) {
			return nil, fmt.Errorf("classifier %s: model has %d outputs but metadata lists %d classes", name, last, len(meta.Classes))
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("classifier %s: onnx new input tensor: %w", name, err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(meta.Classes))))
	if err != nil {
		destroy(name, "input tensor", input)
		return nil, fmt.Errorf("classifier %s: onnx new output tensor: %w", name, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		destroy(name, "input tensor", input)
		destroy(name, "output tensor", output)
		return nil, fmt.Errorf("classifier %s: onnx session options: %w", name, err)
	}
	defer options.Destroy()
	if rt.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(rt.IntraOpThreads); err != nil {
			destroy(name, "input tensor", input)
			destroy(name, "output tensor", output)
			return nil, fmt.Errorf("classifier %s: onnx intra-op threads: %w", name, err)
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputName}, []string{outputName},
		[]ort.Value{input}, []ort.Value{output},
		options)
	if err != nil {
		destroy(name, "input tensor", input)
		destroy(name, "output tensor", output)
		return nil, fmt.Errorf("classifier %s: onnx new session: %w", name, err)
	}

	slog.Info("classifier loaded", "name", name, "kind", kind, "classes", len(meta.Classes), "input_shape", meta.InputShape)
	return &OnnxClassifier{
		name:    name,
		kind:    kind,
		topK:    topK,
		meta:    meta,
		session: session,
		input:   input,
		output:  output,
		frames:  frames,
	}, nil
}

// Classify decodes the file, runs the session and ranks the classes.
func (c *OnnxClassifier) Classify(ctx context.Context, path string) ([]model.Prediction, error) {
	data := make([]float32, c.meta.InputLen())
	if c.kind == cloud.KindVideo {
		clip, err := c.frames.Sample(ctx, path, c.meta.NumFrames)
		if err != nil {
			return nil, fmt.Errorf("classifier %s: %w", c.name, err)
		}
		if err := PreprocessClip(data, clip, c.meta); err != nil {
			return nil, fmt.Errorf("classifier %s: %w", c.name, err)
		}
	} else {
		img, err := DecodeImageFile(path)
		if err != nil {
			return nil, fmt.Errorf("classifier %s: %w", c.name, err)
		}
		if err := PreprocessImage(data, img, c.meta); err != nil {
			return nil, fmt.Errorf("classifier %s: %w", c.name, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logits, err := c.run(data)
	if err != nil {
		return nil, fmt.Errorf("classifier %s: %w", c.name, err)
	}
	return TopK(Softmax(logits), c.meta.Classes, c.topK), nil
}

func (c *OnnxClassifier) run(data []float32) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, fmt.Errorf("session closed")
	}
	copy(c.input.GetData(), data)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	out := c.output.GetData()
	logits := make([]float32, len(out))
	copy(logits, out)
	return logits, nil
}

// Close destroys the session and its tensors.
func (c *OnnxClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		destroy(c.name, "session", c.session)
		c.session = nil
	}
	if c.input != nil {
		destroy(c.name, "input tensor", c.input)
		c.input = nil
	}
	if c.output != nil {
		destroy(c.name, "output tensor", c.output)
		c.output = nil
	}
}

// destroyer is a native onnxruntime object.
type destroyer interface {
	Destroy() error
}

// destroy releases d and logs a failure; teardown keeps going either way.
func destroy(handle string, what string, d destroyer) {
	if err := d.Destroy(); err != nil {
		slog.Error("failed to destroy onnx object", "handle", handle, "object", what, "error", err)
	}
}
