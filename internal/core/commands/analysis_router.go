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
// command that branches an analysis on the requested mode.
//
// Logic Flow:
//  1. Reads the request's mode.
//  2. general / crime: runs the video chain. image: runs the image chain.
//  3. Any other mode: marks the request as invalid under
//     GetInvalidModeParameterName() and stops without an error, the caller
//     answers it with the invalid mode message.
//  4. After a branch ran without error, its *model.AnalysisResult becomes the
//     router's output.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// GetInvalidModeParameterName returns the key set when the mode is not supported.
func GetInvalidModeParameterName() string {
	return "__INVALID_MODE__"
}

// AnalysisRouter is a command that dispatches to the video or image chain.
type AnalysisRouter struct {
	cor.BaseCommand
	video cor.Chain
	image cor.Chain
}

// NewAnalysisRouter is the constructor for AnalysisRouter.
//
// Inputs:
//   - name: A string name for this command instance.
//   - video: The chain run for the general and crime modes.
//   - image: The chain run for the image mode.
//
// Outputs:
//   - *AnalysisRouter: A pointer to the newly instantiated command.
func NewAnalysisRouter(name string, video cor.Chain, image cor.Chain) *AnalysisRouter {
	return &AnalysisRouter{BaseCommand: *cor.NewBaseCommand(name), video: video, image: image}
}

// IsExecutable requires the spooled upload and a mode.
func (c *AnalysisRouter) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(GetModeParameterName()) != nil
}

// Execute runs the branch of the request's mode.
func (c *AnalysisRouter) Execute(context cor.Context) {
	mode := context.Get(GetModeParameterName()).(model.Mode)

	var branch cor.Chain
	switch {
	case mode.IsVideo():
		branch = c.video
	case mode == model.ModeImage:
		branch = c.image
	default:
		context.Add(GetInvalidModeParameterName(), true)
		return
	}

	branch.Execute(context)
	if context.HasErrors() {
		return
	}
	result, ok := context.Get(GetResultParameterName()).(*model.AnalysisResult)
	if !ok {
		c.Fail(context, fmt.Errorf("%s branch produced no result", mode))
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), result)
}
