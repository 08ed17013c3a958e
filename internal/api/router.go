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

package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/cor"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter builds the gin engine serving the analysis API.
//
// Inputs:
//   - config: The application configuration (gin mode, service name, upload limit).
//   - analysis: The command run for each POST /analyze.
//   - handles: Names of the loaded model handles, reported by /healthz.
//
// Outputs:
//   - *gin.Engine: The engine, ready to be used as an http.Handler.
func NewRouter(config *cloud.Config, analysis cor.Command, handles []string) *gin.Engine {
	if config.Application.GinMode != "" {
		gin.SetMode(config.Application.GinMode)
	}
	r := gin.Default()

	// Add OpenTelemetry middleware
	r.Use(otelgin.Middleware(config.Application.Name))

	// Any origin, method and header is accepted. Credentials stay disabled,
	// the combination with a wildcard origin is rejected by browsers.
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:    []string{"*"},
	}))

	AnalyzeRouter(r, config, analysis)
	HealthRouter(r, config.Application.Name, handles)
	return r
}
