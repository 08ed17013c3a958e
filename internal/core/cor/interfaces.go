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

// Package cor (Chain of Responsibility) provides the building blocks used to
// express an analysis request as a sequence of commands: persist the upload,
// classify it, describe it, publish it. This file defines the interfaces every
// command, chain and context implements.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys used to pipe data between commands of a BaseChain.
const (
	// CtxIn holds the primary input of a command. The chain fills it with the
	// previous command's CtxOut.
	CtxIn = "__IN__"
	// CtxOut is where a command places its primary output.
	CtxOut = "__OUT__"
)

// Context is the state shared by the commands of one workflow execution:
// named values, errors, and the scratch files to delete when the run ends.
type Context interface {
	// SetContext sets the standard Go context carrying cancellation and trace data.
	SetContext(context context.Context)

	// GetContext retrieves the standard Go context.
	GetContext() context.Context

	// Add stores a key-value pair and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// AddError records an error, keyed by the name of the command that produced it.
	AddError(key string, err error)

	// GetErrors returns all errors collected during the workflow.
	GetErrors() map[string]error

	// Err joins the collected errors into one, or returns nil.
	Err() error

	// Get retrieves a value by key, nil when absent.
	Get(key string) interface{}

	// Remove deletes a key-value pair.
	Remove(key string)

	// HasErrors reports whether any error has been recorded.
	HasErrors() bool

	// AddTempFile registers a scratch file or directory for removal by Close.
	AddTempFile(file string)

	// GetTempFiles returns the registered scratch paths.
	GetTempFiles() []string

	// Close removes every registered scratch path. It is safe to call more
	// than once and should be deferred right after the context is created.
	Close()
}

// Executable is any object with core execution logic.
type Executable interface {
	// Execute reads its inputs from the Context and writes its outputs back to it.
	Execute(context Context)
}

// Command represents an atomic, testable unit of work.
type Command interface {
	Executable

	// GetName returns the unique name of the command, used for logging and telemetry.
	GetName() string

	// GetInputParam returns the key the command reads its primary input from.
	GetInputParam() string

	// GetOutputParam returns the key the command writes its primary output to.
	GetOutputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	// GetTracer returns the OpenTelemetry tracer for this command.
	GetTracer() trace.Tracer

	// GetMeter returns the OpenTelemetry meter for creating metrics.
	GetMeter() metric.Meter

	// GetSuccessCounter returns a metric counter for successful executions.
	GetSuccessCounter() metric.Int64Counter

	// GetErrorCounter returns a metric counter for failed executions.
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands. It is itself a Command, so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure selects whether the chain keeps going after a command
	// records an error.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
