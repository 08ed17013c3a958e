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

package inference_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

const prompt = "Write a single sentence that accurately describes a video showing: playing basketball, dribbling basketball."

func TestDescriptionOptions(t *testing.T) {
	opts := inference.DescriptionOptions()
	assert.Equal(t, 60, opts.MaxNewTokens)
	assert.True(t, opts.DoSample)
	assert.Equal(t, float32(0.5), opts.Temperature)
	assert.Equal(t, float32(0.9), opts.TopP)
	assert.Equal(t, 1, opts.NumSequences)
}

func TestOpenAIGeneratorSendsSamplingSettings(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","created":1,"model":"google/flan-t5-small",
			"choices":[{"text":" Players run down an outdoor court.","index":0,"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	gen := inference.NewOpenAIGenerator(cloud.TextGeneratorModel{
		Backend: cloud.BackendOpenAI,
		Model:   "google/flan-t5-small",
		BaseURL: server.URL + "/v1",
		APIKey:  "secret",
	})
	text, err := gen.Generate(context.Background(), prompt, inference.DescriptionOptions())
	require.NoError(t, err)
	assert.Equal(t, " Players run down an outdoor court.", text)

	assert.Equal(t, "google/flan-t5-small", body["model"])
	assert.Equal(t, prompt, body["prompt"])
	assert.EqualValues(t, 60, body["max_tokens"])
	assert.InDelta(t, 0.5, body["temperature"], 1e-6)
	assert.InDelta(t, 0.9, body["top_p"], 1e-6)
	assert.EqualValues(t, 1, body["n"])
}

func TestOpenAIGeneratorFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error":  {http.StatusServiceUnavailable, `{"error":{"message":"model loading","type":"server_error"}}`},
		"empty choices": {http.StatusOK, `{"choices":[]}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			gen := inference.NewOpenAIGenerator(cloud.TextGeneratorModel{Model: "m", BaseURL: server.URL})
			_, err := gen.Generate(context.Background(), prompt, inference.DescriptionOptions())
			assert.Error(t, err)
		})
	}
}

type fakeModels struct {
	config *genai.GenerateContentConfig
	model  string
	text   string
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}}},
		},
	}, nil
}

func TestGenAIGeneratorMapsOptions(t *testing.T) {
	fake := &fakeModels{text: "Two players contest a rebound."}
	base := &genai.GenerateContentConfig{SafetySettings: cloud.DefaultSafetySettings}
	gen := inference.NewGenAIGenerator(cloud.NewQuotaAwareModel(base, "gemini-2.0-flash", fake, 0))

	text, err := gen.Generate(context.Background(), prompt, inference.DescriptionOptions())
	require.NoError(t, err)
	assert.Equal(t, "Two players contest a rebound.", text)

	assert.Equal(t, "gemini-2.0-flash", fake.model)
	require.NotNil(t, fake.config)
	assert.Equal(t, float32(0.5), *fake.config.Temperature)
	assert.Equal(t, float32(0.9), *fake.config.TopP)
	assert.EqualValues(t, 60, fake.config.MaxOutputTokens)
	assert.EqualValues(t, 1, fake.config.CandidateCount)
	assert.Equal(t, cloud.DefaultSafetySettings, fake.config.SafetySettings)
}

func TestGenAIGeneratorEmptyResponse(t *testing.T) {
	gen := inference.NewGenAIGenerator(cloud.NewQuotaAwareModel(nil, "gemini-2.0-flash", &fakeModels{}, 0))

	greedy := inference.DescriptionOptions()
	greedy.DoSample = false
	_, err := gen.Generate(context.Background(), prompt, greedy)
	assert.ErrorIs(t, err, cloud.ErrEmptyResponse)
}
