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
// This file defines a Pub/Sub publisher used to announce finished analyses to
// downstream consumers (indexers, dashboards, alerting on the crime model).
//
// Logic Flow:
//  1. A PubSubPublisher is created with a client and a topic ID.
//  2. Publish wraps the payload in a pubsub.Message, starts a span, and waits
//     for the server acknowledgement so that failures surface to the caller.
//  3. Close flushes outstanding messages and stops the topic's goroutines.
package cloud

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// EventPublisher publishes an opaque payload with string attributes.
type EventPublisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) error
}

// PubSubPublisher publishes messages to a single Pub/Sub topic.
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubPublisher is the constructor for creating a PubSubPublisher.
//
// Inputs:
//   - pubsubClient: An authenticated *pubsub.Client for connecting to the service.
//   - topicID: The string ID of the topic (e.g., "media-analysis-events").
//
// Outputs:
//   - *PubSubPublisher: A pointer to the newly created publisher.
func NewPubSubPublisher(pubsubClient *pubsub.Client, topicID string) *PubSubPublisher {
	return &PubSubPublisher{
		client: pubsubClient,
		topic:  pubsubClient.Topic(topicID),
	}
}

// Publish sends one message and blocks until Pub/Sub has accepted it.
func (p *PubSubPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) error {
	spanCtx, span := otel.Tracer("message-publisher").Start(ctx, "publish-message")
	defer span.End()
	span.SetAttributes(attribute.String("topic", p.topic.ID()))

	result := p.topic.Publish(spanCtx, &pubsub.Message{Data: data, Attributes: attributes})
	id, err := result.Get(spanCtx)
	if err != nil {
		span.SetStatus(codes.Error, "failed")
		return fmt.Errorf("publishing to %s: %w", p.topic.ID(), err)
	}
	span.SetAttributes(attribute.String("message_id", id))
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() {
	p.topic.Stop()
}
