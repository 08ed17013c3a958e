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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines the
// command that announces a finished analysis on Pub/Sub.
//
// Logic Flow:
//  1. Receives the *model.AnalysisResult built by the assembler.
//  2. Wraps it in a model.AnalysisEvent with the request id and upload details.
//  3. Publishes the JSON event with `model_type` and `request_id` attributes.
//
// The response does not depend on the event: a failed publish is logged and
// counted, never recorded as a chain error.
package commands

import (
	"encoding/json"
	"log/slog"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// GetRequestIdParameterName returns the key holding the request id.
func GetRequestIdParameterName() string {
	return "__REQUEST_ID__"
}

// AnalysisPublish is a command that publishes analysis events.
type AnalysisPublish struct {
	cor.BaseCommand
	publisher cloud.EventPublisher
}

// NewAnalysisPublish is the constructor for AnalysisPublish. A nil publisher
// turns the command into a no-op.
func NewAnalysisPublish(name string, publisher cloud.EventPublisher) *AnalysisPublish {
	return &AnalysisPublish{BaseCommand: *cor.NewBaseCommand(name), publisher: publisher}
}

// IsExecutable requires a publisher and a result.
func (c *AnalysisPublish) IsExecutable(context cor.Context) bool {
	return c.publisher != nil && c.BaseCommand.IsExecutable(context)
}

// Execute publishes the event.
func (c *AnalysisPublish) Execute(context cor.Context) {
	result := context.Get(c.GetInputParam()).(*model.AnalysisResult)
	requestId, _ := context.Get(GetRequestIdParameterName()).(string)
	fileName, contentType := "", ""
	if upload, ok := context.Get(GetUploadParameterName()).(*model.Upload); ok {
		fileName, contentType = upload.FileName, upload.ContentType
	}

	data, err := json.Marshal(model.NewAnalysisEvent(requestId, fileName, contentType, result))
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Error("failed to encode analysis event", "request_id", requestId, "error", err)
		return
	}
	attributes := map[string]string{
		"model_type": string(result.ModelType),
		"request_id": requestId,
	}
	if err := c.publisher.Publish(context.GetContext(), data, attributes); err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		slog.Error("failed to publish analysis event", "request_id", requestId, "error", err)
		return
	}
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), result)
}
