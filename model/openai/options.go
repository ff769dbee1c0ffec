//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package openai

const (
	defaultChannelBufferSize  = 256
	defaultEmbeddingModel     = "text-embedding-3-small"
	defaultEmbeddingDimension = 1536
)

// options contains configuration options for creating an OpenAI model.
type options struct {
	// apiKey is the API key for authentication.
	apiKey string
	// baseURL overrides the API endpoint, for OpenAI-compatible services.
	baseURL string
	// channelBufferSize is the buffer size for streaming response channels.
	channelBufferSize int
	// embeddingModel is the model used by Embed.
	embeddingModel string
	// embeddingDimensions is the fixed dimension of produced vectors.
	embeddingDimensions int
}

// Option is a function that configures an OpenAI model.
type Option func(*options)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithBaseURL sets the base URL for OpenAI-compatible services.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithChannelBufferSize sets the streaming channel buffer size, 256 by default.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.channelBufferSize = size
	}
}

// WithEmbeddingModel sets the embedding model name.
func WithEmbeddingModel(name string) Option {
	return func(o *options) {
		o.embeddingModel = name
	}
}

// WithEmbeddingDimensions sets the embedding vector dimension.
func WithEmbeddingDimensions(dimensions int) Option {
	return func(o *options) {
		o.embeddingDimensions = dimensions
	}
}
