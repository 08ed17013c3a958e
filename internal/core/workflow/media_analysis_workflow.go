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

// Package workflow defines the high-level business logic orchestrations,
// combining various commands into coherent pipelines. This file implements the
// workflow that analyzes one uploaded file.
//
// Pipeline:
//
//	upload-to-temp-file
//	analysis-router
//	  ├─ general / crime: video-classifier → description-creator → video-result
//	  └─ image:           image-classifier → image-result
//	analysis-publish (only when a publisher is configured)
//
// The caller owns the cor.Context: it seeds CtxIn with a
// *commands.UploadSource and the mode under commands.GetModeParameterName(),
// and defers Close so the scratch file is removed on every exit path.
package workflow

import (
	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/services"
)

// MediaAnalysisWorkflow orchestrates the analysis of an uploaded file.
type MediaAnalysisWorkflow struct {
	cor.BaseCommand
	scratchDir string
	service    *services.AnalysisService
	publisher  cloud.EventPublisher
	chain      cor.Chain // The underlying chain of commands to be executed.
}

// Execute runs the analysis by invoking the underlying command chain.
//
// Inputs:
//   - context: The chain of responsibility context for this request.
func (m *MediaAnalysisWorkflow) Execute(context cor.Context) {
	m.chain.Execute(context)
}

// newVideoChain classifies a video and describes its two leading labels.
func (m *MediaAnalysisWorkflow) newVideoChain() cor.Chain {
	out := cor.NewBaseChain("video-analysis")
	out.AddCommand(commands.NewVideoClassifier("video-classifier", m.service))
	out.AddCommand(commands.NewDescriptionCreator("description-creator", m.service))
	out.AddCommand(commands.NewAnalysisResultAssembler("video-result", true))
	return out
}

// newImageChain classifies an image.
func (m *MediaAnalysisWorkflow) newImageChain() cor.Chain {
	out := cor.NewBaseChain("image-analysis")
	out.AddCommand(commands.NewImageClassifier("image-classifier", m.service))
	out.AddCommand(commands.NewAnalysisResultAssembler("image-result", false))
	return out
}

// initializeChain constructs the sequence of commands that define the workflow.
func (m *MediaAnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(m.GetName())
	out.AddCommand(commands.NewUploadToTempFile("upload-to-temp-file", m.scratchDir))
	out.AddCommand(commands.NewAnalysisRouter("analysis-router", m.newVideoChain(), m.newImageChain()))
	if m.publisher != nil {
		out.AddCommand(commands.NewAnalysisPublish("analysis-publish", m.publisher))
	}
	m.chain = out
}

// NewMediaAnalysisWorkflow is the constructor for the MediaAnalysisWorkflow.
//
// Inputs:
//   - config: The application's overall configuration.
//   - service: The analysis service bound to the model registry.
//   - publisher: Receives analysis events. nil disables publishing.
//
// Returns:
//   - A pointer to a newly created and fully initialized MediaAnalysisWorkflow.
func NewMediaAnalysisWorkflow(
	config *cloud.Config,
	service *services.AnalysisService,
	publisher cloud.EventPublisher) *MediaAnalysisWorkflow {

	out := &MediaAnalysisWorkflow{
		BaseCommand: *cor.NewBaseCommand("media-analysis-workflow"),
		scratchDir:  config.Upload.ScratchDir,
		service:     service,
		publisher:   publisher,
	}
	out.initializeChain()
	return out
}
