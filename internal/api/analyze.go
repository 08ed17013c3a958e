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

// Package api contains the HTTP route definitions for the server. This file
// defines the analysis endpoint.
//
// Functions:
//   - AnalyzeRouter: Registers `POST /analyze`, which accepts a multipart form
//     with a `file` part and a `model_type` field and answers with the
//     classification (and, for videos, a one sentence description).
//
// Status codes:
//   - 200: the analysis result, or the invalid model_type message.
//   - 413: the body is larger than upload.max_upload_mb.
//   - 422: `file` or `model_type` is missing or empty.
//   - 500: classification or description failed.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/commands"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/model"
)

// RequestIdHeader carries the id assigned to each analysis request.
const RequestIdHeader = "X-Request-Id"

const (
	fileField      = "file"
	modelTypeField = "model_type"
)

// bodyTooLarge reports whether err came from the http.MaxBytesReader guard.
func bodyTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// AnalyzeRouter registers the analysis endpoint.
//
// Inputs:
//   - r: The router the endpoint is added to.
//   - config: The application configuration, used for the upload limit.
//   - analysis: The command that analyzes one upload. It receives a
//     *commands.UploadSource as input and the requested model.Mode, and leaves
//     a *model.AnalysisResult under commands.GetResultParameterName().
func AnalyzeRouter(r gin.IRoutes, config *cloud.Config, analysis cor.Command) {
	maxBytes := config.Upload.MaxUploadMB << 20

	r.POST("/analyze", func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		fileHeader, err := c.FormFile(fileField)
		if err != nil {
			if bodyTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "Uploaded file is too large."})
				return
			}
			c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Field 'file' is required."})
			return
		}
		modelType := c.PostForm(modelTypeField)
		if modelType == "" {
			c.JSON(http.StatusUnprocessableEntity, model.ErrorResponse{Error: "Field 'model_type' is required."})
			return
		}

		requestId := uuid.NewString()
		c.Header(RequestIdHeader, requestId)

		chCtx := cor.NewBaseContext()
		chCtx.SetContext(c.Request.Context())
		defer chCtx.Close()

		chCtx.Add(cor.CtxIn, &commands.UploadSource{
			FileName: fileHeader.Filename,
			Open: func() (io.ReadCloser, error) {
				return fileHeader.Open()
			},
		})
		chCtx.Add(commands.GetModeParameterName(), model.Mode(modelType))
		chCtx.Add(commands.GetRequestIdParameterName(), requestId)

		analysis.Execute(chCtx)

		if err := chCtx.Err(); err != nil {
			slog.Error("analysis failed", "request_id", requestId, "model_type", modelType, "error", err)
			c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}
		if chCtx.Get(commands.GetInvalidModeParameterName()) != nil {
			c.JSON(http.StatusOK, model.ErrorResponse{Error: model.InvalidModeMessage})
			return
		}
		result, ok := chCtx.Get(commands.GetResultParameterName()).(*model.AnalysisResult)
		if !ok {
			slog.Error("analysis produced no result", "request_id", requestId, "model_type", modelType)
			c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}
		c.JSON(http.StatusOK, result)
	})
}
