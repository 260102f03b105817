package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/HydroGuard/pkg/breaker"
)

// testReply is a minimal schema used across gateway tests.
type testReply struct {
	Level    *float64 `json:"level" validate:"required,min=0,max=1"`
	Category string   `json:"category" validate:"required"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"bare object",
			`{"a": 1}`,
			`{"a": 1}`,
		},
		{
			"fenced json block",
			"Here you go:\n```json\n{\"a\": 1}\n```\nHope that helps!",
			`{"a": 1}`,
		},
		{
			"fenced uppercase label",
			"```JSON\n[1, 2]\n```",
			`[1, 2]`,
		},
		{
			"object wrapped in prose",
			`Sure! The answer is {"a": {"b": 2}} as requested.`,
			`{"a": {"b": 2}}`,
		},
		{
			"array wrapped in prose",
			`Actions: [{"x": 1}, {"x": 2}] done.`,
			`[{"x": 1}, {"x": 2}]`,
		},
		{
			"braces inside strings ignored",
			`{"text": "a } b { c"}`,
			`{"text": "a } b { c"}`,
		},
		{
			"escaped quotes inside strings",
			`{"text": "she said \"}\" loudly"}`,
			`{"text": "she said \"}\" loudly"}`,
		},
		{
			"no json at all",
			"I cannot help with that.",
			"I cannot help with that.",
		},
		{
			"unbalanced falls back to trimmed reply",
			"  {\"a\": 1  ",
			`{"a": 1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.raw))
		})
	}
}

func TestInvokeParsesCleanReply(t *testing.T) {
	client := NewStaticClient(`{"level": 0.8, "category": "high"}`)
	g := NewGateway(client, Config{})

	got, err := Invoke[testReply](context.Background(), g, "prompt")
	require.NoError(t, err)
	require.NotNil(t, got.Level)
	assert.Equal(t, 0.8, *got.Level)
	assert.Equal(t, "high", got.Category)
	assert.Equal(t, 1, client.Calls())
}

func TestInvokeRetryMatchesDirectParse(t *testing.T) {
	// A garbage first reply followed by a valid one must yield exactly what
	// parsing the valid reply directly would yield.
	valid := `{"level": 0.4, "category": "medium"}`
	client := NewStaticClient("I think the risk is moderate, hard to say.", valid)
	g := NewGateway(client, Config{})

	got, err := Invoke[testReply](context.Background(), g, "prompt")
	require.NoError(t, err)

	var direct testReply
	require.NoError(t, json.Unmarshal([]byte(valid), &direct))
	assert.Equal(t, direct, got)
	assert.Equal(t, 2, client.Calls())
}

func TestInvokeSchemaViolationConsumesRetry(t *testing.T) {
	// Parseable JSON that violates the schema is as bad as no JSON.
	client := NewStaticClient(
		`{"level": 7.5, "category": "high"}`, // out of range
		`{"level": 0.5, "category": "high"}`,
	)
	g := NewGateway(client, Config{})

	got, err := Invoke[testReply](context.Background(), g, "prompt")
	require.NoError(t, err)
	assert.Equal(t, 0.5, *got.Level)
	assert.Equal(t, 2, client.Calls())
}

func TestInvokeDoubleFailureReturnsRawReply(t *testing.T) {
	client := NewStaticClient("no json here", "still no json")
	g := NewGateway(client, Config{})

	_, err := Invoke[testReply](context.Background(), g, "prompt")
	require.Error(t, err)

	var failure *Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 2, failure.Attempts)
	assert.Equal(t, "still no json", failure.RawReply)
	assert.NotNil(t, failure.Err)
}

func TestInvokeMissingRequiredFieldFails(t *testing.T) {
	client := NewStaticClient(
		`{"category": "high"}`,
		`{"category": "high"}`,
	)
	g := NewGateway(client, Config{})

	_, err := Invoke[testReply](context.Background(), g, "prompt")
	var failure *Failure
	require.ErrorAs(t, err, &failure)
}

func TestInvokeTransportFailureThenSuccess(t *testing.T) {
	client := &StaticClient{
		errs:    []error{errors.New("connection refused")},
		replies: []string{`{"level": 0.9, "category": "high"}`},
	}

	g := NewGateway(client, Config{})
	got, err := Invoke[testReply](context.Background(), g, "prompt")
	require.NoError(t, err)
	assert.Equal(t, 0.9, *got.Level)
}

func TestInvokeOpenBreakerFailsFastWithoutRetry(t *testing.T) {
	brk := breaker.New(breaker.Config{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		OpenTimeout:      time.Minute,
	})
	// Trip the breaker.
	_ = brk.Execute(func() error { return errors.New("boom") })

	client := NewStaticClient(`{"level": 0.1, "category": "low"}`)
	g := NewGateway(client, Config{Breaker: brk})

	_, err := Invoke[testReply](context.Background(), g, "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	// The backend must not have been touched at all.
	assert.Equal(t, 0, client.Calls())
}
