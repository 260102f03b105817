// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reasoning adapts a free-text generative backend into a source of
// validated, typed values.
//
// The backend is an external, non-deterministic oracle: its replies may be
// bare JSON, fenced JSON, JSON wrapped in prose, or no JSON at all. The
// Gateway is the only component allowed to talk to it. Invoke extracts a
// single JSON payload from the raw reply, parses it into the caller's schema
// struct, validates the struct's constraints, retries once with a JSON-only
// amendment, and on the second failure returns a *Failure carrying the raw
// text. It never fabricates plausible-looking values.
//
// Callers must still treat every field as backend-supplied: the Gateway
// checks structure and ranges declared on the schema, but domain safety
// (destination existence, percentage coercion, priority ordering) belongs to
// the stage that owns the domain.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/HydroGuard/pkg/breaker"
)

var gatewayTracer = otel.Tracer("hydroguard.reasoning.gateway")

// jsonOnlyAmendment is appended to the prompt on the single retry.
const jsonOnlyAmendment = "\n\nIMPORTANT: Your previous reply could not be parsed. " +
	"Respond with ONLY a single valid JSON payload containing the requested fields. " +
	"No prose, no markdown, no code fences."

// Failure is returned when the backend reply stayed unparsable or
// schema-invalid after the bounded retry, or the backend itself failed.
// It always carries the last raw reply (empty on transport failure) so the
// caller can log it; it never carries fabricated values.
type Failure struct {
	RawReply string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("reasoning failed after %d attempt(s): %v", f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Config tunes the Gateway.
type Config struct {
	// Timeout bounds each individual backend call, independent of the retry.
	// Default: 45 seconds.
	Timeout time.Duration

	// MaxTokens bounds the reply size. Default: 2048.
	MaxTokens int

	// Temperature is the sampling temperature. Structured replies want low
	// randomness; values in [0.3, 0.4] work well. Default: 0.3.
	Temperature float32

	// Breaker guards the backend call. If nil, a breaker with defaults is
	// created.
	Breaker *breaker.Breaker

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Gateway is the single point where the unreliable-text contract is
// enforced. Safe for concurrent use.
type Gateway struct {
	client   Client
	timeout  time.Duration
	maxTok   int
	temp     float32
	brk      *breaker.Breaker
	validate *validator.Validate
	log      *slog.Logger
}

// NewGateway wraps a backend client.
func NewGateway(client Client, cfg Config) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.Breaker == nil {
		cfg.Breaker = breaker.New(breaker.DefaultConfig())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Gateway{
		client:   client,
		timeout:  cfg.Timeout,
		maxTok:   cfg.MaxTokens,
		temp:     cfg.Temperature,
		brk:      cfg.Breaker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      cfg.Logger,
	}
}

// Invoke submits prompt to the backend and decodes the reply into T.
//
// T is the stage-specific reply schema: a struct whose json tags name the
// required fields and whose validate tags declare range constraints. On
// success the returned T equals parsing the reply directly; on failure the
// zero T is returned together with a *Failure.
//
// At most two backend calls are made: the original prompt and one retry with
// a JSON-only amendment. Each call has its own timeout. If the circuit
// breaker is open the call fails fast without consuming the retry.
func Invoke[T any](ctx context.Context, g *Gateway, prompt string) (T, error) {
	var zero T

	ctx, span := gatewayTracer.Start(ctx, "Gateway.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("reasoning.schema", fmt.Sprintf("%T", zero)))

	var lastRaw string
	var lastErr error
	attempts := 0

	for try := 0; try < 2; try++ {
		p := prompt
		if try > 0 {
			p = prompt + jsonOnlyAmendment
		}
		attempts++

		raw, err := g.generate(ctx, p)
		if err != nil {
			lastErr = err
			lastRaw = ""
			span.AddEvent("backend call failed", trace.WithAttributes(attribute.Int("attempt", attempts)))
			if errors.Is(err, breaker.ErrOpen) {
				// Backend is known dead; a retry would also be rejected.
				break
			}
			continue
		}
		lastRaw = raw

		var value T
		if err := decodeReply(g, raw, &value); err != nil {
			lastErr = err
			g.log.Warn("reasoning reply rejected",
				"attempt", attempts,
				"error", err,
				"reply_bytes", len(raw))
			continue
		}

		span.SetAttributes(attribute.Int("reasoning.attempts", attempts))
		return value, nil
	}

	span.SetStatus(codes.Error, lastErr.Error())
	g.log.Error("reasoning failed", "attempts", attempts, "error", lastErr)
	return zero, &Failure{RawReply: lastRaw, Attempts: attempts, Err: lastErr}
}

// generate performs one bounded backend call through the breaker.
func (g *Gateway) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	temp := g.temp
	maxTok := g.maxTok
	params := GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTok,
	}

	var raw string
	err := g.brk.Execute(func() error {
		var genErr error
		raw, genErr = g.client.Generate(callCtx, prompt, params)
		return genErr
	})
	if err != nil {
		return "", err
	}
	return raw, nil
}

// decodeReply extracts, parses, and validates one raw reply into out.
func decodeReply[T any](g *Gateway, raw string, out *T) error {
	payload := ExtractJSON(raw)
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("reply contains no JSON payload")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("parse reply: %w", err)
	}
	if err := g.validateSchema(out); err != nil {
		return fmt.Errorf("reply failed schema validation: %w", err)
	}
	return nil
}

// validateSchema runs validator tags when the schema is a struct.
func (g *Gateway) validateSchema(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return fmt.Errorf("nil schema value")
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return g.validate.Struct(rv.Interface())
}

// ExtractJSON pulls a single JSON payload out of a raw backend reply.
//
// Preference order:
//  1. the inner content of a fenced code block labeled json
//  2. the first balanced {...} or [...] value in the reply
//  3. the whole trimmed reply
//
// Exported for tests; the result is not guaranteed to be valid JSON.
func ExtractJSON(raw string) string {
	if inner, ok := fencedJSON(raw); ok {
		return inner
	}
	if v, ok := firstBalanced(raw); ok {
		return v
	}
	return strings.TrimSpace(raw)
}

// fencedJSON returns the content of the first ```json fence, if any.
func fencedJSON(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	start := strings.Index(lower, "```json")
	if start < 0 {
		return "", false
	}
	rest := raw[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// firstBalanced scans for the first balanced JSON object or array.
// String contents and escapes are honored so braces inside strings don't
// confuse the scan.
func firstBalanced(raw string) (string, bool) {
	start := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if raw[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
