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
// Responsibility (COR) pattern's Command interface. This file defines the two
// classification commands.
//
// VideoClassifier reads the spooled upload, classifies it with the classifier
// of the request's mode, stores the top five predictions under
// GetTopPredictionsParameterName() and passes the two leading labels on as its
// output, ready for the DescriptionCreator.
//
// ImageClassifier does the same with the image classifier and passes the top
// five predictions on as its output.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/services"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GetModeParameterName returns the key holding the request's model.Mode.
func GetModeParameterName() string {
	return "__MODE__"
}

// GetTopPredictionsParameterName returns the key holding the rounded top five.
func GetTopPredictionsParameterName() string {
	return "__TOP5__"
}

// VideoClassifier is a command that classifies a spooled video.
type VideoClassifier struct {
	cor.BaseCommand
	service *services.AnalysisService
}

// NewVideoClassifier is the constructor for the VideoClassifier command.
func NewVideoClassifier(name string, service *services.AnalysisService) *VideoClassifier {
	return &VideoClassifier{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

// IsExecutable requires the upload and the mode.
func (c *VideoClassifier) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(GetModeParameterName()) != nil
}

// Execute classifies the video.
func (c *VideoClassifier) Execute(context cor.Context) {
	upload := context.Get(c.GetInputParam()).(*model.Upload)
	mode := context.Get(GetModeParameterName()).(model.Mode)
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.String("model_type", string(mode)),
		attribute.Int64("upload.size", upload.Size))

	top5, top2, err := c.service.ClassifyVideo(context.GetContext(), upload.Path, mode)
	if err != nil {
		c.Fail(context, fmt.Errorf("video classification failed: %w", err))
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetTopPredictionsParameterName(), top5)
	context.Add(c.GetOutputParam(), top2)
}

// ImageClassifier is a command that classifies a spooled image.
type ImageClassifier struct {
	cor.BaseCommand
	service *services.AnalysisService
}

// NewImageClassifier is the constructor for the ImageClassifier command.
func NewImageClassifier(name string, service *services.AnalysisService) *ImageClassifier {
	return &ImageClassifier{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

// Execute classifies the image.
func (c *ImageClassifier) Execute(context cor.Context) {
	upload := context.Get(c.GetInputParam()).(*model.Upload)
	trace.SpanFromContext(context.GetContext()).SetAttributes(
		attribute.String("model_type", string(model.ModeImage)),
		attribute.Int64("upload.size", upload.Size))

	top5, err := c.service.ClassifyImage(context.GetContext(), upload.Path)
	if err != nil {
		c.Fail(context, fmt.Errorf("image classification failed: %w", err))
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetTopPredictionsParameterName(), top5)
	context.Add(c.GetOutputParam(), top5)
}
