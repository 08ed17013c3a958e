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

package commands_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
	test "github.com/jaycherian/gcp-go-media-analyzer/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext() cor.Context {
	chCtx := cor.NewBaseContext()
	chCtx.SetContext(context.Background())
	return chCtx
}

func source(fileName string, content []byte) *commands.UploadSource {
	return &commands.UploadSource{
		FileName: fileName,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
}

func TestScratchExtension(t *testing.T) {
	tests := []struct {
		name     string
		head     []byte
		fileName string
		wantExt  string
		wantMIME string
	}{
		{"sniffed mp4 wins over name", test.MP4Bytes(), "clip.png", ".mp4", "video/mp4"},
		{"sniffed png", test.PNGBytes(2, 2), "upload", ".png", "image/png"},
		{"unknown content keeps lowercased name extension", []byte("plain"), "../../clip.MP4", ".mp4", ""},
		{"directory in name is ignored", []byte("plain"), "a/b/c.avi", ".avi", ""},
		{"no extension", []byte("plain"), "clip", "", ""},
		{"unsafe extension dropped", []byte("plain"), "clip.m p4", "", ""},
		{"overlong extension dropped", []byte("plain"), "clip.abcdefghijk", "", ""},
		{"empty name", nil, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, mimeType := commands.ScratchExtension(tt.head, tt.fileName)
			assert.Equal(t, tt.wantExt, ext)
			assert.Equal(t, tt.wantMIME, mimeType)
		})
	}
}

func TestUploadToTempFileSpoolsUniqueFiles(t *testing.T) {
	dir := t.TempDir()
	content := append(test.MP4Bytes(), bytes.Repeat([]byte{0x42}, 4096)...)
	cmd := commands.NewUploadToTempFile("upload", dir)

	first, second := newContext(), newContext()
	for _, chCtx := range []cor.Context{first, second} {
		chCtx.Add(cor.CtxIn, source("../../etc/clip.mp4", content))
		require.True(t, cmd.IsExecutable(chCtx))
		cmd.Execute(chCtx)
		require.NoError(t, chCtx.Err())
	}

	a := first.Get(commands.GetUploadParameterName()).(*model.Upload)
	b := second.Get(commands.GetUploadParameterName()).(*model.Upload)
	assert.NotEqual(t, a.Path, b.Path)
	assert.Same(t, a, first.Get(cor.CtxOut))

	assert.Equal(t, dir, filepath.Dir(a.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(a.Path), commands.ScratchFilePrefix))
	assert.Equal(t, "../../etc/clip.mp4", a.FileName)
	assert.Equal(t, "video/mp4", a.ContentType)
	assert.Equal(t, int64(len(content)), a.Size)
	assert.Equal(t, []string{a.Path}, first.GetTempFiles())

	written, err := os.ReadFile(a.Path)
	require.NoError(t, err)
	assert.Equal(t, content, written)

	info, err := os.Stat(a.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	first.Close()
	second.Close()
	_, err = os.Stat(a.Path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(b.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadToTempFileShortUpload(t *testing.T) {
	chCtx := newContext()
	chCtx.Add(cor.CtxIn, source("tiny.txt", []byte("hi")))

	commands.NewUploadToTempFile("upload", t.TempDir()).Execute(chCtx)
	require.NoError(t, chCtx.Err())

	upload := chCtx.Get(commands.GetUploadParameterName()).(*model.Upload)
	assert.Equal(t, int64(2), upload.Size)
	assert.Equal(t, ".txt", filepath.Ext(upload.Path))
}

func TestUploadToTempFileOpenFailure(t *testing.T) {
	chCtx := newContext()
	chCtx.Add(cor.CtxIn, &commands.UploadSource{
		FileName: "clip.mp4",
		Open:     func() (io.ReadCloser, error) { return nil, errors.New("part vanished") },
	})

	commands.NewUploadToTempFile("upload", t.TempDir()).Execute(chCtx)

	require.Error(t, chCtx.Err())
	assert.Contains(t, chCtx.Err().Error(), "part vanished")
	assert.Empty(t, chCtx.GetTempFiles())
}

func TestUploadToTempFileMissingDirectory(t *testing.T) {
	chCtx := newContext()
	chCtx.Add(cor.CtxIn, source("clip.mp4", test.MP4Bytes()))

	commands.NewUploadToTempFile("upload", filepath.Join(t.TempDir(), "absent")).Execute(chCtx)

	require.Error(t, chCtx.Err())
	assert.Empty(t, chCtx.GetTempFiles())
}

func TestAnalysisResultAssembler(t *testing.T) {
	top := []model.Prediction{{Label: "tabby", Score: 0.9}}

	t.Run("without description", func(t *testing.T) {
		chCtx := newContext()
		chCtx.Add(commands.GetModeParameterName(), model.ModeImage)
		chCtx.Add(commands.GetTopPredictionsParameterName(), top)
		chCtx.Add(commands.GetDescriptionParameterName(), "ignored")

		commands.NewAnalysisResultAssembler("image-result", false).Execute(chCtx)
		require.NoError(t, chCtx.Err())
		assert.Equal(t, &model.AnalysisResult{ModelType: model.ModeImage, Top5Labels: top},
			chCtx.Get(commands.GetResultParameterName()))
	})

	t.Run("with description", func(t *testing.T) {
		chCtx := newContext()
		chCtx.Add(commands.GetModeParameterName(), model.ModeGeneral)
		chCtx.Add(commands.GetTopPredictionsParameterName(), top)
		chCtx.Add(commands.GetDescriptionParameterName(), "A cat sits.")

		commands.NewAnalysisResultAssembler("video-result", true).Execute(chCtx)
		require.NoError(t, chCtx.Err())
		result := chCtx.Get(commands.GetResultParameterName()).(*model.AnalysisResult)
		require.NotNil(t, result.Description)
		assert.Equal(t, "A cat sits.", *result.Description)
	})

	t.Run("missing description fails", func(t *testing.T) {
		chCtx := newContext()
		chCtx.Add(commands.GetModeParameterName(), model.ModeGeneral)
		chCtx.Add(commands.GetTopPredictionsParameterName(), top)

		commands.NewAnalysisResultAssembler("video-result", true).Execute(chCtx)
		assert.Error(t, chCtx.Err())
		assert.Nil(t, chCtx.Get(commands.GetResultParameterName()))
	})
}

// recordingChain records that it ran and optionally stores a result.
type recordingChain struct {
	cor.BaseChain
	ran    int
	result *model.AnalysisResult
}

func (c *recordingChain) Execute(context cor.Context) {
	c.ran++
	if c.result != nil {
		context.Add(commands.GetResultParameterName(), c.result)
	}
}

func newRecordingChain(name string, result *model.AnalysisResult) *recordingChain {
	return &recordingChain{BaseChain: *cor.NewBaseChain(name), result: result}
}

func TestAnalysisRouter(t *testing.T) {
	videoResult := &model.AnalysisResult{ModelType: model.ModeCrime}
	imageResult := &model.AnalysisResult{ModelType: model.ModeImage}

	tests := []struct {
		mode      model.Mode
		wantVideo int
		wantImage int
		want      *model.AnalysisResult
		invalid   bool
	}{
		{model.ModeGeneral, 1, 0, videoResult, false},
		{model.ModeCrime, 1, 0, videoResult, false},
		{model.ModeImage, 0, 1, imageResult, false},
		{model.Mode("Image"), 0, 0, nil, true},
		{model.Mode(""), 0, 0, nil, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			video := newRecordingChain("video", videoResult)
			image := newRecordingChain("image", imageResult)
			chCtx := newContext()
			chCtx.Add(cor.CtxIn, &model.Upload{Path: "/tmp/x"})
			chCtx.Add(commands.GetModeParameterName(), tt.mode)

			router := commands.NewAnalysisRouter("router", video, image)
			require.True(t, router.IsExecutable(chCtx))
			router.Execute(chCtx)

			require.NoError(t, chCtx.Err())
			assert.Equal(t, tt.wantVideo, video.ran)
			assert.Equal(t, tt.wantImage, image.ran)
			if tt.invalid {
				assert.Equal(t, true, chCtx.Get(commands.GetInvalidModeParameterName()))
				assert.Nil(t, chCtx.Get(cor.CtxOut))
			} else {
				assert.Nil(t, chCtx.Get(commands.GetInvalidModeParameterName()))
				assert.Same(t, tt.want, chCtx.Get(cor.CtxOut))
			}
		})
	}
}

func TestAnalysisRouterBranchWithoutResult(t *testing.T) {
	chCtx := newContext()
	chCtx.Add(cor.CtxIn, &model.Upload{Path: "/tmp/x"})
	chCtx.Add(commands.GetModeParameterName(), model.ModeImage)

	commands.NewAnalysisRouter("router", newRecordingChain("video", nil), newRecordingChain("image", nil)).Execute(chCtx)

	assert.Error(t, chCtx.Err())
}

func TestAnalysisPublish(t *testing.T) {
	result := &model.AnalysisResult{ModelType: model.ModeImage, Top5Labels: []model.Prediction{{Label: "tabby", Score: 0.5}}}

	t.Run("nil publisher is skipped", func(t *testing.T) {
		chCtx := newContext()
		chCtx.Add(cor.CtxIn, result)
		assert.False(t, commands.NewAnalysisPublish("publish", nil).IsExecutable(chCtx))
	})

	t.Run("failure is not a request error", func(t *testing.T) {
		publisher := &test.FakePublisher{Err: errors.New("unavailable")}
		chCtx := newContext()
		chCtx.Add(cor.CtxIn, result)

		commands.NewAnalysisPublish("publish", publisher).Execute(chCtx)
		assert.NoError(t, chCtx.Err())
		assert.Empty(t, publisher.Published())
	})

	t.Run("event carries upload details", func(t *testing.T) {
		publisher := &test.FakePublisher{}
		chCtx := newContext()
		chCtx.Add(cor.CtxIn, result)
		chCtx.Add(commands.GetRequestIdParameterName(), "abc")
		chCtx.Add(commands.GetUploadParameterName(), &model.Upload{FileName: "cat.png", ContentType: "image/png"})

		commands.NewAnalysisPublish("publish", publisher).Execute(chCtx)
		require.NoError(t, chCtx.Err())
		events := publisher.Published()
		require.Len(t, events, 1)
		assert.Equal(t, "image", events[0].Attributes["model_type"])
		assert.Contains(t, string(events[0].Data), `"file_name":"cat.png"`)
		assert.Contains(t, string(events[0].Data), `"request_id":"abc"`)
		assert.NotContains(t, string(events[0].Data), `"description"`)
	})
}
