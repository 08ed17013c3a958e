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
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Name          string   `json:"name"`
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Handles       []string `json:"handles"`
}

// HealthRouter registers GET /healthz. Handles are loaded before the server
// listens, so the endpoint always reports "ok".
func HealthRouter(r gin.IRoutes, name string, handles []string) {
	started := time.Now()
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthStatus{
			Name:          name,
			Status:        "ok",
			UptimeSeconds: int64(time.Since(started).Seconds()),
			Handles:       handles,
		})
	})
}
