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

package inference

import "context"

// GenerationOptions are the sampling settings of one generation call.
type GenerationOptions struct {
	MaxNewTokens int
	DoSample     bool // Greedy decoding when false; Temperature is then ignored.
	Temperature  float32
	TopP         float32
	NumSequences int
}

// DescriptionOptions are the fixed settings used for video descriptions.
func DescriptionOptions() GenerationOptions {
	return GenerationOptions{
		MaxNewTokens: 60,
		DoSample:     true,
		Temperature:  0.5,
		TopP:         0.9,
		NumSequences: 1,
	}
}

func (o GenerationOptions) temperature() float32 {
	if !o.DoSample {
		return 0
	}
	return o.Temperature
}

// TextGenerator continues a prompt. Implementations may echo the prompt at
// the start of the returned text.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error)
}
