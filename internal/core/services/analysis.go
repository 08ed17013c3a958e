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

// Package services contains the business logic of an analysis. This file,
// `analysis.go`, defines the AnalysisService, which adapts raw classifier
// output into the response shape (top five, rounded) and turns the two leading
// video labels into a one sentence description.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// ErrInvalidVideoMode is returned by ClassifyVideo for a mode other than
// general or crime. The HTTP handler validates the mode first, so requests
// never reach this branch.
var ErrInvalidVideoMode = errors.New("Invalid model type. Choose 'general' or 'crime'.")

// DescriptionPromptPrefix is the fixed start of every description prompt.
const DescriptionPromptPrefix = "Write a single sentence that accurately describes a video showing:"

// AnalysisService runs classification and description requests against the
// registry's handles on the inference worker pool.
type AnalysisService struct {
	Registry *inference.Registry   // Read-only model handles.
	Pool     *inference.WorkerPool // Bounds concurrent inference.
}

// NewAnalysisService is the constructor for AnalysisService.
func NewAnalysisService(registry *inference.Registry, pool *inference.WorkerPool) *AnalysisService {
	return &AnalysisService{Registry: registry, Pool: pool}
}

// topPredictions keeps the first MaxTopLabels predictions in the order the
// classifier returned them and rounds their scores.
func topPredictions(predictions []model.Prediction) []model.Prediction {
	n := len(predictions)
	if n > model.MaxTopLabels {
		n = model.MaxTopLabels
	}
	out := make([]model.Prediction, 0, n)
	for _, p := range predictions[:n] {
		out = append(out, model.Prediction{Label: p.Label, Score: model.RoundScore(p.Score)})
	}
	return out
}

func topLabels(predictions []model.Prediction, n int) []string {
	if n > len(predictions) {
		n = len(predictions)
	}
	out := make([]string, 0, n)
	for _, p := range predictions[:n] {
		out = append(out, p.Label)
	}
	return out
}

func (s *AnalysisService) classify(ctx context.Context, classifier inference.Classifier, path string) ([]model.Prediction, error) {
	return inference.RunOnPool(ctx, s.Pool, func(ctx context.Context) ([]model.Prediction, error) {
		return classifier.Classify(ctx, path)
	})
}

// ClassifyVideo classifies the video at path with the classifier of mode.
//
// Inputs:
//   - ctx: The request context.
//   - path: Local path of the uploaded video.
//   - mode: model.ModeGeneral or model.ModeCrime.
//
// Outputs:
//   - []model.Prediction: Up to five predictions with scores rounded to three decimals.
//   - []string: The labels of the first two predictions.
//   - error: ErrInvalidVideoMode, or the classifier's error unchanged.
func (s *AnalysisService) ClassifyVideo(ctx context.Context, path string, mode model.Mode) ([]model.Prediction, []string, error) {
	var classifier inference.Classifier
	switch mode {
	case model.ModeGeneral:
		classifier = s.Registry.General()
	case model.ModeCrime:
		classifier = s.Registry.Crime()
	default:
		return nil, nil, ErrInvalidVideoMode
	}

	predictions, err := s.classify(ctx, classifier, path)
	if err != nil {
		return nil, nil, err
	}
	return topPredictions(predictions), topLabels(predictions, model.DescriptionLabels), nil
}

// ClassifyImage classifies the image at path. Scores are rounded to three decimals.
func (s *AnalysisService) ClassifyImage(ctx context.Context, path string) ([]model.Prediction, error) {
	predictions, err := s.classify(ctx, s.Registry.Image(), path)
	if err != nil {
		return nil, err
	}
	return topPredictions(predictions), nil
}

// DescriptionPrompt builds the prompt for the given labels.
func DescriptionPrompt(labels []string) string {
	return DescriptionPromptPrefix + " " + strings.Join(labels, ", ") + "."
}

// StripPrompt removes an echoed prompt from generated text and trims the result.
func StripPrompt(text string, prompt string) string {
	text = strings.ReplaceAll(text, prompt, "")
	text = strings.TrimSpace(text)
	// Some backends echo only the instruction part.
	text = strings.TrimPrefix(text, DescriptionPromptPrefix)
	return strings.TrimSpace(text)
}

// Describe generates a one sentence description of a video showing labels.
// The result is not deterministic.
func (s *AnalysisService) Describe(ctx context.Context, labels []string) (string, error) {
	prompt := DescriptionPrompt(labels)
	generator := s.Registry.Generator()
	text, err := inference.RunOnPool(ctx, s.Pool, func(ctx context.Context) (string, error) {
		return generator.Generate(ctx, prompt, inference.DescriptionOptions())
	})
	if err != nil {
		return "", err
	}
	return StripPrompt(text, prompt), nil
}
