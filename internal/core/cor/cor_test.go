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

package cor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendCommand reads a string from CtxIn and writes it back with a suffix.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	calls  int
}

func newAppendCommand(name string, suffix string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix}
}

func (c *appendCommand) Execute(context cor.Context) {
	c.calls++
	in := context.Get(c.GetInputParam()).(string)
	context.Add(c.GetOutputParam(), in+c.suffix)
}

// failingCommand always records an error.
type failingCommand struct {
	cor.BaseCommand
	calls int
}

func (c *failingCommand) Execute(context cor.Context) {
	c.calls++
	c.Fail(context, errors.New("boom"))
}

// silentCommand succeeds without writing an output.
type silentCommand struct {
	cor.BaseCommand
	calls int
}

func (c *silentCommand) Execute(context cor.Context) {
	c.calls++
}

// cancelCommand cancels the request while it runs.
type cancelCommand struct {
	cor.BaseCommand
	cancel context.CancelFunc
}

func (c *cancelCommand) Execute(context cor.Context) {
	c.cancel()
	context.Add(c.GetOutputParam(), context.Get(c.GetInputParam()))
}

func TestChainPipesOutputToInput(t *testing.T) {
	chain := cor.NewBaseChain("pipe")
	chain.AddCommand(newAppendCommand("first", "-a")).AddCommand(newAppendCommand("second", "-b"))

	chCtx := cor.NewBaseContext()
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, "x")

	require.True(t, chain.IsExecutable(chCtx))
	chain.Execute(chCtx)

	assert.False(t, chCtx.HasErrors())
	assert.Equal(t, "x-a-b", chCtx.Get(cor.CtxIn))
	assert.Nil(t, chCtx.Get(cor.CtxOut))
	assert.NoError(t, chCtx.Err())
}

func TestChainStopsAfterFailure(t *testing.T) {
	failing := &failingCommand{BaseCommand: *cor.NewBaseCommand("failing")}
	after := newAppendCommand("after", "-z")

	chain := cor.NewBaseChain("stop")
	chain.AddCommand(failing).AddCommand(after)

	chCtx := cor.NewBaseContext()
	chCtx.Add(cor.CtxIn, "x")
	chain.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 0, after.calls)
	assert.ErrorContains(t, chCtx.Err(), "failing: boom")
}

func TestChainContinueOnFailure(t *testing.T) {
	failing := &failingCommand{BaseCommand: *cor.NewBaseCommand("failing")}
	after := newAppendCommand("after", "-z")

	chain := cor.NewBaseChain("continue")
	chain.ContinueOnFailure(true).AddCommand(failing).AddCommand(after)

	chCtx := cor.NewBaseContext()
	chCtx.Add(cor.CtxIn, "x")
	chain.Execute(chCtx)

	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, after.calls, "the input survives a failed command")
	assert.Equal(t, "x-z", chCtx.Get(cor.CtxIn))
	assert.ErrorContains(t, chCtx.Err(), "failing: boom")
}

func TestChainDropsInputAfterCommandWithoutOutput(t *testing.T) {
	silent := &silentCommand{BaseCommand: *cor.NewBaseCommand("silent")}
	after := newAppendCommand("after", "-z")

	chain := cor.NewBaseChain("silent")
	chain.AddCommand(silent).AddCommand(after)

	chCtx := cor.NewBaseContext()
	chCtx.Add(cor.CtxIn, "x")
	chain.Execute(chCtx)

	assert.Equal(t, 1, silent.calls)
	assert.Equal(t, 0, after.calls)
	assert.False(t, chCtx.HasErrors())
}

func TestChainSkipsCommandWithoutInput(t *testing.T) {
	cmd := newAppendCommand("needs-input", "-a")
	chain := cor.NewBaseChain("skip")
	chain.AddCommand(cmd)

	chCtx := cor.NewBaseContext()
	chain.Execute(chCtx)

	assert.Equal(t, 0, cmd.calls)
	assert.False(t, chCtx.HasErrors())
}

func TestChainStopsWhenRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	after := newAppendCommand("after", "-z")
	chain := cor.NewBaseChain("cancelled")
	chain.AddCommand(&cancelCommand{BaseCommand: *cor.NewBaseCommand("cancel"), cancel: cancel}).AddCommand(after)

	chCtx := cor.NewBaseContext()
	chCtx.SetContext(ctx)
	chCtx.Add(cor.CtxIn, "x")
	chain.Execute(chCtx)

	assert.Equal(t, 0, after.calls)
	require.True(t, chCtx.HasErrors())
	assert.ErrorIs(t, chCtx.GetErrors()["cancelled"], context.Canceled)
	assert.Equal(t, ctx, chCtx.GetContext())
}

func TestContextCloseRemovesScratchPaths(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "temp_upload.mp4")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0o600))
	frames := filepath.Join(dir, "frames")
	require.NoError(t, os.MkdirAll(frames, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(frames, "frame_000001.png"), []byte("png"), 0o600))

	chCtx := cor.NewBaseContext()
	chCtx.AddTempFile(file)
	chCtx.AddTempFile(frames)
	chCtx.AddTempFile(filepath.Join(dir, "never-created"))
	assert.Len(t, chCtx.GetTempFiles(), 3)

	chCtx.Close()
	chCtx.Close()

	assert.NoFileExists(t, file)
	assert.NoDirExists(t, frames)
	assert.Empty(t, chCtx.GetTempFiles())
}

func TestContextErrJoinsInKeyOrder(t *testing.T) {
	chCtx := cor.NewBaseContext()
	assert.NoError(t, chCtx.Err())

	chCtx.AddError("zeta", errors.New("last"))
	chCtx.AddError("alpha", errors.New("first"))
	chCtx.AddError("alpha", errors.New("again"))

	err := chCtx.Err()
	require.Error(t, err)
	msg := err.Error()
	assert.Less(t, strings.Index(msg, "alpha"), strings.Index(msg, "zeta"))
	assert.Contains(t, msg, "again")
	assert.Len(t, chCtx.GetErrors(), 2)
}
