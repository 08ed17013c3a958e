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
	"fmt"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIGenerator is a TextGenerator backed by an OpenAI-compatible
// /completions endpoint, typically a local inference server hosting a small
// seq2seq model.
type OpenAIGenerator struct {
	client    *openai.Client
	model     string
	rateLimit *rate.Limiter
}

// NewOpenAIGenerator is the constructor for OpenAIGenerator.
//
// Inputs:
//   - cfg: The generator configuration. BaseURL must include the API version
//     prefix, e.g. "http://localhost:8080/v1".
//
// Outputs:
//   - *OpenAIGenerator: A generator that issues one completion per call.
func NewOpenAIGenerator(cfg cloud.TextGeneratorModel) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimit)
	}
	return &OpenAIGenerator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		rateLimit: limiter,
	}
}

// Generate requests a single completion and returns the text of its first choice.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts GenerationOptions) (string, error) {
	if err := g.rateLimit.Wait(ctx); err != nil {
		return "", fmt.Errorf("waiting for %s quota: %w", g.model, err)
	}
	resp, err := g.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       g.model,
		Prompt:      prompt,
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.temperature(),
		TopP:        opts.TopP,
		N:           opts.NumSequences,
	})
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Text == "" {
		return "", cloud.ErrEmptyResponse
	}
	return resp.Choices[0].Text, nil
}
