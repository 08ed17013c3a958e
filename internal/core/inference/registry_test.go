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

package inference_test

import (
	"context"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClassifier struct{ closed bool }

func (s *stubClassifier) Classify(context.Context, string) ([]model.Prediction, error) {
	return model.GetExampleImagePredictions(), nil
}

func (s *stubClassifier) Close() { s.closed = true }

type stubGenerator struct{}

func (stubGenerator) Generate(context.Context, string, inference.GenerationOptions) (string, error) {
	return "ok", nil
}

func TestNewRegistryRequiresEveryHandle(t *testing.T) {
	c := &stubClassifier{}
	_, err := inference.NewRegistry(nil, c, c, stubGenerator{})
	assert.ErrorIs(t, err, inference.ErrMissingHandle)
	_, err = inference.NewRegistry(c, c, c, nil)
	assert.ErrorIs(t, err, inference.ErrMissingHandle)
}

func TestRegistryHandlesAndClose(t *testing.T) {
	general, crime, image := &stubClassifier{}, &stubClassifier{}, &stubClassifier{}
	registry, err := inference.NewRegistry(general, crime, image, stubGenerator{})
	require.NoError(t, err)

	assert.Same(t, general, registry.General())
	assert.Same(t, crime, registry.Crime())
	assert.Same(t, image, registry.Image())
	assert.Equal(t, []string{"general", "crime", "image", "generator"}, registry.Names())

	registry.Close()
	assert.True(t, general.closed)
	assert.True(t, crime.closed)
	assert.True(t, image.closed)
}
