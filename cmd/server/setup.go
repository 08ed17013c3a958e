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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-media-analyzer/internal/cloud"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/inference"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/services"
	"github.com/jaycherian/gcp-go-media-analyzer/internal/core/workflow"
)

// StateManager holds the components built once at startup and shared by
// every request.
type StateManager struct {
	config   *cloud.Config
	cloud    *cloud.ServiceClients
	registry *inference.Registry
	pool     *inference.WorkerPool
	analysis *workflow.MediaAnalysisWorkflow
}

// SetupOS defaults the configuration location to ./configs and the runtime
// to "local", unless the environment already names them.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, cloud.DefaultConfigPrefix); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, cloud.DefaultConfigRuntime)
	}
	return err
}

// GetConfig loads the TOML configuration and applies environment overrides.
func GetConfig() (*cloud.Config, error) {
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup environment: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	cloud.ApplyEnvOverrides(config)
	return config, nil
}

// InitState opens the cloud clients, loads every model handle and builds the
// analysis workflow. All handles are loaded before the server accepts a
// request; a handle that fails to load aborts startup.
//
// Inputs:
//   - ctx: The application's root context.
//   - config: The loaded configuration.
//
// Outputs:
//   - *StateManager: The shared state. Close releases it.
//   - error: The first client or model that failed to initialize.
func InitState(ctx context.Context, config *cloud.Config) (*StateManager, error) {
	state := &StateManager{config: config}

	clients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return nil, err
	}
	state.cloud = clients

	state.registry, err = inference.LoadRegistry(ctx, config, clients)
	if err != nil {
		clients.Close()
		return nil, err
	}
	slog.Info("model handles loaded", "handles", state.registry.Names())

	state.pool = inference.NewWorkerPool(config.Application.ThreadPoolSize)
	service := services.NewAnalysisService(state.registry, state.pool)

	// A nil *PubSubPublisher must not become a non-nil interface.
	var publisher cloud.EventPublisher
	if clients.Publisher != nil {
		publisher = clients.Publisher
	}
	state.analysis = workflow.NewMediaAnalysisWorkflow(config, service, publisher)
	slog.Info("analysis workflow ready", "workers", state.pool.Size(), "events", publisher != nil)
	return state, nil
}

// Close stops the worker pool, then releases the model handles and the clients.
func (s *StateManager) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.registry != nil {
		s.registry.Close()
	}
	if s.cloud != nil {
		s.cloud.Close()
	}
}
