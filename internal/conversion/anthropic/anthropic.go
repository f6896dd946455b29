// Package anthropic implements conversion.Transformer on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"templateapi/internal/config"
	"templateapi/internal/conversion"
	"templateapi/internal/model"
)

// Name identifies this provider in configuration and metrics.
const Name = "anthropic"

// Transformer sends the whole document in one user message and parses the
// JSON object the model answers with.
type Transformer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	mode      conversion.Mode
}

var _ conversion.Transformer = (*Transformer)(nil)

// New builds a Transformer. The SDK's own retries are disabled: each
// Transform is a single attempt. Extra options are appended after the
// defaults, which lets tests point the client at a local server.
func New(cfg config.ConversionConfig, opts ...option.RequestOption) (*Transformer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("conversion model is required")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	client := anthropic.NewClient(append(base, opts...)...)

	return &Transformer{
		client:    client,
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		mode:      conversion.ParseMode(cfg.Mode),
	}, nil
}

// Transform asks the model for a rewrite or a suggestion list depending on
// the configured mode.
func (t *Transformer) Transform(ctx context.Context, text string) (*model.ConvertResult, error) {
	msg, err := t.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(t.model),
		MaxTokens: t.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: conversion.SystemPrompt(t.mode)},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("%w: no text in response", conversion.ErrMalformedResponse)
	}
	return conversion.ParseResponse(text, sb.String())
}
