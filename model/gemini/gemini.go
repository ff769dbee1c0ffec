//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package gemini provides Gemini-compatible model implementations.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/crewcall-ai/crewcall/model"
	"github.com/crewcall-ai/crewcall/tool"
)

const defaultChannelBufferSize = 256

// options contains configuration options for creating a Gemini model.
type options struct {
	channelBufferSize int
	clientConfig      *genai.ClientConfig
}

// Option is a function that configures a Gemini model.
type Option func(*options)

// WithChannelBufferSize sets the streaming channel buffer size, 256 by default.
func WithChannelBufferSize(size int) Option {
	return func(o *options) {
		if size <= 0 {
			size = defaultChannelBufferSize
		}
		o.channelBufferSize = size
	}
}

// WithClientConfig sets the genai client configuration (API key, backend).
func WithClientConfig(config *genai.ClientConfig) Option {
	return func(o *options) {
		o.clientConfig = config
	}
}

// Model implements the model.Model interface for the Gemini API.
type Model struct {
	client            *genai.Client
	name              string
	channelBufferSize int
}

var _ model.Model = (*Model)(nil)

// New creates a new Gemini model.
func New(ctx context.Context, name string, opts ...Option) (*Model, error) {
	o := options{channelBufferSize: defaultChannelBufferSize}
	for _, opt := range opts {
		opt(&o)
	}
	client, err := genai.NewClient(ctx, o.clientConfig)
	if err != nil {
		return nil, err
	}
	return &Model{
		client:            client,
		name:              name,
		channelBufferSize: o.channelBufferSize,
	}, nil
}

// Info implements the model.Model interface.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.name}
}

// Complete implements the model.Model interface.
func (m *Model) Complete(ctx context.Context, request *model.Request) (*model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	contents := m.convertMessages(request.Messages)
	config := m.buildChatConfig(request)
	rsp, err := m.client.Models.GenerateContent(ctx, m.modelName(request), contents, config)
	if err != nil {
		return nil, err
	}
	return m.buildResponse(rsp, model.ObjectTypeChatCompletion, true, false), nil
}

// Stream implements the model.Model interface.
func (m *Model) Stream(ctx context.Context, request *model.Request) (<-chan *model.Response, error) {
	if request == nil {
		return nil, errors.New("request cannot be nil")
	}
	contents := m.convertMessages(request.Messages)
	config := m.buildChatConfig(request)
	responseChan := make(chan *model.Response, m.channelBufferSize)
	go func() {
		defer close(responseChan)
		stream := m.client.Models.GenerateContentStream(ctx, m.modelName(request), contents, config)
		acc := &accumulator{}
		for chunk, err := range stream {
			if err != nil {
				errorResponse := &model.Response{
					Error: &model.ResponseError{
						Message: err.Error(),
						Type:    model.ErrorTypeStreamError,
					},
					Timestamp: time.Now(),
					Done:      true,
				}
				select {
				case responseChan <- errorResponse:
				case <-ctx.Done():
				}
				return
			}
			response := m.buildResponse(chunk, model.ObjectTypeChatCompletionChunk, false, true)
			acc.accumulate(response)
			select {
			case responseChan <- response:
			case <-ctx.Done():
				return
			}
		}
		select {
		case responseChan <- acc.buildResponse():
		case <-ctx.Done():
		}
	}()
	return responseChan, nil
}

func (m *Model) modelName(request *model.Request) string {
	if request.Model != "" {
		return request.Model
	}
	return m.name
}

// buildChatConfig converts our Request to a Gemini request config.
func (m *Model) buildChatConfig(request *model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Tools: m.convertTools(request.Tools),
	}
	// AUTO mode lets the model decide whether to call tools or respond with
	// text.
	if len(request.Tools) > 0 {
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode: genai.FunctionCallingConfigModeAuto,
			},
		}
	}
	if request.MaxTokens != nil {
		config.MaxOutputTokens = int32(*request.MaxTokens)
	}
	if request.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*request.Temperature))
	}
	return config
}

// convertMessages converts our Message format to Gemini contents.
func (m *Model) convertMessages(messages []model.Message) []*genai.Content {
	result := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == model.RoleAssistant {
			role = genai.RoleModel
		}
		if msg.Content == "" {
			continue
		}
		result = append(result, genai.NewContentFromText(msg.Content, genai.Role(role)))
	}
	return result
}

func (m *Model) convertTools(tools map[string]tool.CallableTool) []*genai.Tool {
	result := make([]*genai.Tool, 0, len(tools))
	for _, t := range tools {
		decl := t.Declaration()
		funcDeclaration := &genai.FunctionDeclaration{
			Name:                 decl.Name,
			Description:          decl.Description,
			ParametersJsonSchema: decl.InputSchema,
		}
		result = append(result, &genai.Tool{
			FunctionDeclarations: []*genai.FunctionDeclaration{funcDeclaration},
		})
	}
	return result
}

// convertContentBlock builds a single assistant message from Gemini candidates.
func (m *Model) convertContentBlock(candidates []*genai.Candidate) (model.Message, string) {
	var (
		textBuilder  strings.Builder
		toolCalls    []model.ToolCall
		finishReason string
	)
	for _, candidate := range candidates {
		if candidate.FinishReason != "" {
			finishReason = string(candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				textBuilder.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				toolCalls = append(toolCalls, model.ToolCall{
					ID: part.FunctionCall.ID,
					Function: model.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: args,
					},
				})
			}
		}
	}
	return model.Message{
		Role:      model.RoleAssistant,
		Content:   textBuilder.String(),
		ToolCalls: toolCalls,
	}, finishReason
}

func (m *Model) buildResponse(
	rsp *genai.GenerateContentResponse,
	object string,
	done bool,
	isPartial bool,
) *model.Response {
	if rsp == nil {
		return &model.Response{Object: object, IsPartial: isPartial, Done: done}
	}
	response := &model.Response{
		ID:        rsp.ResponseID,
		Object:    object,
		Created:   rsp.CreateTime.Unix(),
		Model:     rsp.ModelVersion,
		Timestamp: rsp.CreateTime,
		Done:      done,
		IsPartial: isPartial,
	}
	message, finishReason := m.convertContentBlock(rsp.Candidates)
	if isPartial {
		// Streaming chunk: only populate Delta. The final accumulated
		// response carries the full Message.
		response.Choices = []model.Choice{{Index: 0, Delta: message}}
	} else {
		response.Choices = []model.Choice{{Index: 0, Message: message}}
	}
	if finishReason != "" {
		response.Choices[0].FinishReason = &finishReason
	}
	if rsp.UsageMetadata != nil {
		response.Usage = &model.Usage{
			PromptTokens:     int(rsp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(rsp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(rsp.UsageMetadata.TotalTokenCount),
		}
	}
	return response
}
