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

package commands

import (
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// GetResultParameterName returns the key holding the final *model.AnalysisResult.
func GetResultParameterName() string {
	return "__RESULT__"
}

// AnalysisResultAssembler builds the response entity from the values the
// classification and description commands left in the context. The
// description is attached only when withDescription is set, so image results
// never carry the key.
type AnalysisResultAssembler struct {
	cor.BaseCommand
	withDescription bool
}

// NewAnalysisResultAssembler is the constructor for AnalysisResultAssembler.
func NewAnalysisResultAssembler(name string, withDescription bool) *AnalysisResultAssembler {
	return &AnalysisResultAssembler{BaseCommand: *cor.NewBaseCommand(name), withDescription: withDescription}
}

// IsExecutable requires the mode and the top predictions.
func (c *AnalysisResultAssembler) IsExecutable(context cor.Context) bool {
	return context != nil &&
		context.Get(GetModeParameterName()) != nil &&
		context.Get(GetTopPredictionsParameterName()) != nil
}

// Execute assembles the result.
func (c *AnalysisResultAssembler) Execute(context cor.Context) {
	result := &model.AnalysisResult{
		ModelType:  context.Get(GetModeParameterName()).(model.Mode),
		Top5Labels: context.Get(GetTopPredictionsParameterName()).([]model.Prediction),
	}
	if c.withDescription {
		description, ok := context.Get(GetDescriptionParameterName()).(string)
		if !ok {
			c.Fail(context, fmt.Errorf("no description was generated"))
			return
		}
		result.Description = &description
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(GetResultParameterName(), result)
	context.Add(c.GetOutputParam(), result)
}
