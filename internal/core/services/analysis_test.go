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

package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/services"
	test "github.com/jaycherian/gcp-go-media-analyzer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, handles *test.FakeHandles) *services.AnalysisService {
	t.Helper()
	pool := inference.NewWorkerPool(2)
	t.Cleanup(pool.Close)
	return services.NewAnalysisService(handles.Registry(t), pool)
}

func TestClassifyVideoTopFiveAndTopTwo(t *testing.T) {
	handles := test.NewFakeHandles()
	svc := newService(t, handles)

	top5, top2, err := svc.ClassifyVideo(context.Background(), "/tmp/clip.mp4", model.ModeGeneral)
	require.NoError(t, err)
	require.Len(t, top5, 5)
	assert.Equal(t, model.Prediction{Label: "playing basketball", Score: 0.812}, top5[0])
	assert.Equal(t, 0.109, top5[1].Score)
	assert.Equal(t, 0.008, top5[4].Score)
	assert.Equal(t, []string{"playing basketball", "dribbling basketball"}, top2)
	assert.Equal(t, 1, handles.General.Calls())
	assert.Equal(t, 0, handles.Crime.Calls())
}

func TestClassifyVideoRoutesCrime(t *testing.T) {
	handles := test.NewFakeHandles()
	svc := newService(t, handles)

	top5, top2, err := svc.ClassifyVideo(context.Background(), "/tmp/clip.mp4", model.ModeCrime)
	require.NoError(t, err)
	assert.Len(t, top5, 2)
	assert.Equal(t, 0.713, top5[0].Score)
	assert.Equal(t, []string{"Fighting", "Normal"}, top2)
	assert.Equal(t, 1, handles.Crime.Calls())
}

func TestClassifyVideoRejectsNonVideoMode(t *testing.T) {
	handles := test.NewFakeHandles()
	svc := newService(t, handles)

	for _, mode := range []model.Mode{model.ModeImage, "audio", ""} {
		_, _, err := svc.ClassifyVideo(context.Background(), "/tmp/clip.mp4", mode)
		assert.ErrorIs(t, err, services.ErrInvalidVideoMode)
	}
	assert.Equal(t, "Invalid model type. Choose 'general' or 'crime'.", services.ErrInvalidVideoMode.Error())
	assert.Equal(t, 0, handles.General.Calls()+handles.Crime.Calls()+handles.Image.Calls())
}

func TestClassifyImageKeepsClassifierOrder(t *testing.T) {
	handles := test.NewFakeHandles()
	handles.Image.Predictions = []model.Prediction{
		{Label: "b", Score: 0.1},
		{Label: "a", Score: 0.9},
	}
	svc := newService(t, handles)

	top5, err := svc.ClassifyImage(context.Background(), "/tmp/cat.png")
	require.NoError(t, err)
	assert.Equal(t, []model.Prediction{{Label: "b", Score: 0.1}, {Label: "a", Score: 0.9}}, top5)
}

func TestClassifierErrorsPassThrough(t *testing.T) {
	handles := test.NewFakeHandles()
	boom := errors.New("cannot decode")
	handles.Image.Err = boom
	svc := newService(t, handles)

	_, err := svc.ClassifyImage(context.Background(), "/tmp/broken.png")
	assert.ErrorIs(t, err, boom)
}

func TestClassifyHonorsCancellation(t *testing.T) {
	handles := test.NewFakeHandles()
	handles.General.Delay = time.Minute
	svc := newService(t, handles)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := svc.ClassifyVideo(ctx, "/tmp/clip.mp4", model.ModeGeneral)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDescriptionPrompt(t *testing.T) {
	assert.Equal(t,
		"Write a single sentence that accurately describes a video showing: playing basketball, dribbling basketball.",
		services.DescriptionPrompt([]string{"playing basketball", "dribbling basketball"}))
	assert.Equal(t,
		"Write a single sentence that accurately describes a video showing: Fighting.",
		services.DescriptionPrompt([]string{"Fighting"}))
}

func TestDescribeStripsEchoedPrompt(t *testing.T) {
	handles := test.NewFakeHandles()
	svc := newService(t, handles)

	text, err := svc.Describe(context.Background(), []string{"playing basketball", "dribbling basketball"})
	require.NoError(t, err)
	assert.Equal(t, "A group of people playing basketball on an outdoor court.", text)
	assert.NotContains(t, text, services.DescriptionPromptPrefix)

	require.Equal(t, 1, handles.Generator.Calls())
	assert.Equal(t, inference.DescriptionOptions(), handles.Generator.Options[0])
}

func TestDescribeWithoutEcho(t *testing.T) {
	handles := test.NewFakeHandles()
	handles.Generator.EchoPrompt = false
	handles.Generator.Text = "  People fight in a parking lot.\n"
	svc := newService(t, handles)

	text, err := svc.Describe(context.Background(), []string{"Fighting", "Normal"})
	require.NoError(t, err)
	assert.Equal(t, "People fight in a parking lot.", text)
}

func TestDescribeFailure(t *testing.T) {
	handles := test.NewFakeHandles()
	handles.Generator.Err = errors.New("generator down")
	svc := newService(t, handles)

	_, err := svc.Describe(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestStripPromptInstructionOnly(t *testing.T) {
	prompt := services.DescriptionPrompt([]string{"x", "y"})
	assert.Equal(t, "Something happens.", services.StripPrompt(services.DescriptionPromptPrefix+" Something happens.", prompt))
}
