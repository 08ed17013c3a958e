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

// Package model defines the data structures for the application. This file,
// `examples.go`, provides factory functions for hardcoded, example instances of
// the data models. They document the response shapes and seed the fakes used
// throughout the test suites.
package model

// GetExampleVideoPredictions returns a ranked Kinetics style prediction list
// longer than MaxTopLabels, with unrounded scores.
//
// Outputs:
//   - []Prediction: Seven predictions in descending score order.
func GetExampleVideoPredictions() []Prediction {
	return []Prediction{
		{Label: "playing basketball", Score: 0.81234},
		{Label: "dribbling basketball", Score: 0.10871},
		{Label: "shooting basketball", Score: 0.04449},
		{Label: "dunking basketball", Score: 0.01905},
		{Label: "playing volleyball", Score: 0.00826},
		{Label: "juggling balls", Score: 0.00411},
		{Label: "skipping rope", Score: 0.00304},
	}
}

// GetExampleImagePredictions returns an ImageNet style prediction list.
func GetExampleImagePredictions() []Prediction {
	return []Prediction{
		{Label: "tabby, tabby cat", Score: 0.6215},
		{Label: "tiger cat", Score: 0.2477},
		{Label: "Egyptian cat", Score: 0.0954},
		{Label: "lynx, catamount", Score: 0.0049},
		{Label: "Persian cat", Score: 0.0021},
	}
}

// GetExampleVideoAnalysis returns the response produced for a basketball clip
// in general mode.
func GetExampleVideoAnalysis() *AnalysisResult {
	description := "A group of people playing basketball on an outdoor court."
	top := GetExampleVideoPredictions()[:MaxTopLabels]
	out := &AnalysisResult{
		ModelType:   ModeGeneral,
		Top5Labels:  make([]Prediction, 0, len(top)),
		Description: &description,
	}
	for _, p := range top {
		out.Top5Labels = append(out.Top5Labels, Prediction{Label: p.Label, Score: RoundScore(p.Score)})
	}
	return out
}
