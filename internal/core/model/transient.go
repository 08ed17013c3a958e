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

// Package model defines the core data structures for the application.
// This file, `transient.go`, contains the request scoped entities produced while
// a single upload is analyzed. None of them outlive the request that created
// them; the optional AnalysisEvent is a copy handed to Pub/Sub.
package model

import (
	"math"
	"time"
)

// Mode selects the classifier an upload is routed to.
type Mode string

// The analysis modes accepted by POST /analyze.
const (
	ModeGeneral Mode = "general" // General action recognition on video.
	ModeCrime   Mode = "crime"   // Crime / violence recognition on video.
	ModeImage   Mode = "image"   // Object classification on a still image.
)

// MaxTopLabels is the number of ranked predictions reported to callers.
const MaxTopLabels = 5

// DescriptionLabels is the number of leading labels fed to the description prompt.
const DescriptionLabels = 2

// InvalidModeMessage is the body text returned for an unknown model_type.
const InvalidModeMessage = "Invalid model_type. Choose 'general', 'crime', or 'image'."

// IsVideo reports whether the mode runs a video classifier.
func (m Mode) IsVideo() bool {
	return m == ModeGeneral || m == ModeCrime
}

// IsValid reports whether the mode is one of the three supported modes.
func (m Mode) IsValid() bool {
	return m.IsVideo() || m == ModeImage
}

// Prediction is one (label, score) pair returned by a classifier.
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"` // Probability in [0,1].
}

// RoundScore rounds a probability to three decimals, half away from zero.
func RoundScore(score float64) float64 {
	return math.Round(score*1000) / 1000
}

// AnalysisResult is the response entity for a successful analysis. Description
// is only set for the video modes; the JSON key is absent for images.
type AnalysisResult struct {
	ModelType   Mode         `json:"model_type"`
	Top5Labels  []Prediction `json:"top5_labels"`
	Description *string      `json:"description,omitempty"`
}

// ErrorResponse is the body used for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AnalysisEvent is the payload published to Pub/Sub after a successful analysis.
type AnalysisEvent struct {
	RequestId   string       `json:"request_id"`
	FileName    string       `json:"file_name"`
	ContentType string       `json:"content_type,omitempty"`
	ModelType   Mode         `json:"model_type"`
	Top5Labels  []Prediction `json:"top5_labels"`
	Description string       `json:"description,omitempty"`
	CreateDate  time.Time    `json:"create_date"`
}

// NewAnalysisEvent copies a result into an event stamped with the current time.
func NewAnalysisEvent(requestId string, fileName string, contentType string, result *AnalysisResult) *AnalysisEvent {
	out := &AnalysisEvent{
		RequestId:   requestId,
		FileName:    fileName,
		ContentType: contentType,
		ModelType:   result.ModelType,
		Top5Labels:  result.Top5Labels,
		CreateDate:  time.Now(),
	}
	if result.Description != nil {
		out.Description = *result.Description
	}
	return out
}

// Upload describes the scratch copy of a request's file.
type Upload struct {
	Path        string // Unique scratch path, removed when the request ends.
	FileName    string // Client supplied file name, informational only.
	ContentType string // Sniffed MIME type, empty when unknown.
	Size        int64
}
