//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

package model

import "context"

// Info describes a model instance.
type Info struct {
	// Name is the model name.
	Name string `json:"name"`
}

// Model is the uniform client contract over LLM providers.
type Model interface {
	// Info returns static information about the model.
	Info() Info

	// Complete issues a blocking completion and returns the full response,
	// including any tool-call intents.
	Complete(ctx context.Context, request *Request) (*Response, error)

	// Stream issues a streaming completion. The returned channel is lazy,
	// finite and non-restartable; it terminates with a final response
	// (Done=true) carrying token usage. The channel is closed by the
	// provider when the stream ends or the context is cancelled.
	Stream(ctx context.Context, request *Request) (<-chan *Response, error)
}

// Embedder is the optional embedding capability of a provider. Only the
// embedding-capable provider must implement it.
type Embedder interface {
	// Embed returns the embedding vector of the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions returns the fixed dimension of produced vectors.
	Dimensions() int
}
