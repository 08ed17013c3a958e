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

import (
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"
)

// GenAIGenerator is a TextGenerator backed by a Gemini model on Vertex AI or
// the Gemini API.
type GenAIGenerator struct {
	model                    *cloud.QuotaAwareGenerativeAIModel
	geminiInputTokenCounter  metric.Int64Counter
	geminiOutputTokenCounter metric.Int64Counter
}

// NewGenAIGenerator is the constructor for GenAIGenerator. Token usage is
// recorded on the global meter provider.
func NewGenAIGenerator(model *cloud.QuotaAwareGenerativeAIModel) *GenAIGenerator {
	meter := otel.Meter("github.com/jaycherian/gcp-go-media-analyzer")
	inputCounter, err := meter.Int64Counter("description.gemini.token.input")
	if err != nil {
		slog.Warn("error creating gemini input token counter", "error", err)
	}
	outputCounter, err := meter.Int64Counter("description.gemini.token.output")
	if err != nil {
		slog.Warn("error creating gemini output token counter", "error", err)
	}
	return &GenAIGenerator{
		model:                    model,
		geminiInputTokenCounter:  inputCounter,
		geminiOutputTokenCounter: outputCounter,
	}
}

// requestConfig maps the sampling options onto a Gemini request, keeping the
// model's safety settings.
func (g *GenAIGenerator) requestConfig(opts GenerationOptions) *genai.GenerateContentConfig {
	out := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](opts.temperature()),
		TopP:            genai.Ptr[float32](opts.TopP),
		MaxOutputTokens: int32(opts.MaxNewTokens),
		CandidateCount:  int32(opts.NumSequences),
	}
	if base := g.model.GenerativeContentConfig; base != nil {
		out.SafetySettings = base.SafetySettings
		out.SystemInstruction = base.SystemInstruction
	}
	return out
}

// Generate sends the prompt as a single user turn and returns the text of the
// response.
func (g *GenAIGenerator) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	return cloud.GenerateTextResponse(ctx, g.geminiInputTokenCounter, g.geminiOutputTokenCounter, g.model, prompt, g.requestConfig(opts))
}
