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

// This file samples video frames with the ffmpeg binary.
//
// Logic Flow:
//  1. Create a private scratch directory for the clip.
//  2. Run ffmpeg to write the first N decoded frames as numbered PNG files.
//  3. Decode the PNG files in order.
//  4. Pad a short clip by repeating its last frame up to N.
//  5. Remove the scratch directory, whatever happened above.
package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ErrNoFrames is returned when ffmpeg produced no decodable frame.
var ErrNoFrames = errors.New("no decodable frames in video")

const (
	framesDirPattern = "frames-"
	framePattern     = "frame_%06d.png"
)

// FrameSampler extracts the leading frames of a video file.
type FrameSampler struct {
	commandPath string // ffmpeg executable, resolved through PATH when relative.
	scratchDir  string // Parent of the per-clip frame directories, os.TempDir() when empty.
}

// NewFrameSampler is the constructor for FrameSampler.
func NewFrameSampler(commandPath string, scratchDir string) *FrameSampler {
	if commandPath == "" {
		commandPath = "ffmpeg"
	}
	return &FrameSampler{commandPath: commandPath, scratchDir: scratchDir}
}

// frameArgs builds the ffmpeg argument list that writes the first n frames of
// input into dir.
func frameArgs(input string, dir string, n int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-frames:v", strconv.Itoa(n),
		filepath.Join(dir, framePattern),
	}
}

// Sample returns exactly n frames from the start of the video at path.
//
// Inputs:
//   - ctx: Cancels the ffmpeg process.
//   - path: Local path of the video.
//   - n: Number of frames the model expects.
//
// Outputs:
//   - []image.Image: n frames in presentation order.
//   - error: ErrNoFrames, an ffmpeg failure or a cancellation.
func (s *FrameSampler) Sample(ctx context.Context, path string, n int) ([]image.Image, error) {
	dir, err := os.MkdirTemp(s.scratchDir, framesDirPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("failed to remove frame directory", "dir", dir, "error", err)
		}
	}()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.commandPath, frameArgs(path, dir, n)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("error running ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	names, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	frames := make([]image.Image, 0, n)
	for _, name := range names {
		if len(frames) == n {
			break
		}
		img, err := DecodeImageFile(name)
		if err != nil {
			slog.Warn("skipping undecodable frame", "frame", filepath.Base(name), "error", err)
			continue
		}
		frames = append(frames, img)
	}
	return PadFrames(frames, n)
}

// PadFrames repeats the last frame until the clip holds n frames. Clips that
// are already long enough are truncated to n.
func PadFrames(frames []image.Image, n int) ([]image.Image, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	if len(frames) >= n {
		return frames[:n], nil
	}
	last := frames[len(frames)-1]
	for len(frames) < n {
		frames = append(frames, last)
	}
	return frames, nil
}
