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
// command that turns the leading video labels into a one sentence description.
//
// Logic Flow:
//  1. Receives the top two labels from the previous command.
//  2. Asks the description generator for a sentence, through the analysis
//     service, which builds the fixed prompt and strips the echoed prompt.
//  3. Stores the description under GetDescriptionParameterName() and as output.
//
// A generation failure is recorded as an error, which aborts the whole
// analysis: no partial result is returned for a video.
package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/services"
)

// GetDescriptionParameterName returns the key holding the generated description.
func GetDescriptionParameterName() string {
	return "__DESCRIPTION__"
}

// DescriptionCreator is a command that generates a video description.
type DescriptionCreator struct {
	cor.BaseCommand
	service *services.AnalysisService
}

// NewDescriptionCreator is the constructor for the DescriptionCreator command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - service: The analysis service holding the text generator.
//
// Outputs:
//   - *DescriptionCreator: A pointer to the newly instantiated command.
func NewDescriptionCreator(name string, service *services.AnalysisService) *DescriptionCreator {
	return &DescriptionCreator{BaseCommand: *cor.NewBaseCommand(name), service: service}
}

// Execute generates the description.
func (c *DescriptionCreator) Execute(context cor.Context) {
	labels := context.Get(c.GetInputParam()).([]string)

	description, err := c.service.Describe(context.GetContext(), labels)
	if err != nil {
		c.Fail(context, fmt.Errorf("description generation failed: %w", err))
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetDescriptionParameterName(), description)
	context.Add(c.GetOutputParam(), description)
}
