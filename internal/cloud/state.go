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

// Package cloud provides components for interacting with Google Cloud services.
// This file is responsible for initializing and holding the client objects
// needed to talk to Google Cloud. It acts as a dependency injection container:
// a single ServiceClients value is created at startup and passed to the parts of
// the application that need it.
//
// Every client is optional. A deployment that keeps its models on local disk,
// uses an OpenAI-compatible generator and publishes no events never opens a
// Google Cloud connection.
//
// Logic Flow:
//  1. NewCloudServiceClients is called at application startup with the Config.
//  2. A Storage client is created when any classifier artifact is a gs:// URI.
//  3. A Pub/Sub client and publisher are created when events.topic is set.
//  4. A GenAI client and the quota aware description model are created when
//     the generator backend is "genai".
//  5. The artifact fetcher is always created, backed by the Storage client if any.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
	"google.golang.org/genai"
)

// ServiceClients is a struct that acts as a central container for the clients
// that interact with external Google Cloud services. Fields are nil when the
// configuration does not need them.
type ServiceClients struct {
	StorageClient    *storage.Client              // Client for Google Cloud Storage (GCS).
	PubsubClient     *pubsub.Client               // Client for Google Cloud Pub/Sub.
	GenAIClient      *genai.Client                // Client for Gemini on Vertex AI or the Gemini API.
	Publisher        *PubSubPublisher             // Publisher for analysis events.
	DescriptionModel *QuotaAwareGenerativeAIModel // Rate limited Gemini model used by the genai generator backend.
	Artifacts        *ArtifactFetcher             // Resolves model artifact locations to local files.
}

// Close releases every client that was opened.
func (c *ServiceClients) Close() {
	if c.Publisher != nil {
		c.Publisher.Close()
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
	if c.StorageClient != nil {
		_ = c.StorageClient.Close()
	}
}

func needsStorage(config *Config) bool {
	for _, m := range config.Classifiers {
		if IsGCSURI(m.ModelPath) || IsGCSURI(m.MetadataPath) {
			return true
		}
	}
	return false
}

// NewCloudServiceClients is a factory function that initializes the Google Cloud
// service clients the configuration asks for.
//
// Inputs:
//   - ctx: The root context.Context for the application, used to manage the lifecycle of the clients.
//   - config: A pointer to the loaded application configuration (`Config`).
//
// Outputs:
//   - *ServiceClients: A pointer to the initialized ServiceClients struct.
//   - error: An error if any of the clients fail to initialize.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	var err error
	cloud := &ServiceClients{}
	fail := func(err error) (*ServiceClients, error) {
		cloud.Close()
		return nil, err
	}

	if needsStorage(config) {
		var opts []option.ClientOption
		if config.ModelCache.Anonymous {
			opts = append(opts, option.WithoutAuthentication())
		}
		cloud.StorageClient, err = storage.NewClient(ctx, opts...)
		if err != nil {
			return fail(fmt.Errorf("creating storage client: %w", err))
		}
		cloud.Artifacts = NewArtifactFetcher(StorageOpener(cloud.StorageClient), config.ModelCache)
	} else {
		cloud.Artifacts = NewArtifactFetcher(nil, config.ModelCache)
	}

	if config.Events.Topic != "" {
		cloud.PubsubClient, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return fail(fmt.Errorf("creating pubsub client: %w", err))
		}
		cloud.Publisher = NewPubSubPublisher(cloud.PubsubClient, config.Events.Topic)
		slog.Info("publishing analysis events", "topic", config.Events.Topic)
	}

	if config.Generator.Backend == BackendGenAI {
		clientConfig := &genai.ClientConfig{
			Project:  config.Application.GoogleProjectId,
			Location: config.Application.GoogleLocation,
			Backend:  genai.BackendVertexAI,
		}
		if config.Generator.APIKey != "" {
			clientConfig = &genai.ClientConfig{
				APIKey:  config.Generator.APIKey,
				Backend: genai.BackendGeminiAPI,
			}
		}
		cloud.GenAIClient, err = genai.NewClient(ctx, clientConfig)
		if err != nil {
			return fail(fmt.Errorf("creating genai client: %w", err))
		}
		base := &genai.GenerateContentConfig{SafetySettings: DefaultSafetySettings}
		cloud.DescriptionModel = NewQuotaAwareModel(base, config.Generator.Model, cloud.GenAIClient.Models, config.Generator.RateLimit)
		slog.Info("genai description model ready", "model", config.Generator.Model, "vertex", clientConfig.Backend == genai.BackendVertexAI)
	}

	return cloud, nil
}
