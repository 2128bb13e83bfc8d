/*-------------------------------------------------------------------------
 *
 * log_context.go
 *    Log context helpers for structured logging
 *
 * Provides helpers for consistent structured logging with request_id,
 * workflow_id, step_id, session_id, agent_id fields across all components.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/metrics/log_context.go
 *
 *-------------------------------------------------------------------------
 */

package metrics

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	workflowIDKey contextKey = "workflow_id"
	stepIDKey     contextKey = "step_id"
	sessionIDKey  contextKey = "session_id"
	agentIDKey    contextKey = "agent_id"
)

/* WithRequestIDLogContext adds request ID to log context */
func WithRequestIDLogContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

/* WithWorkflowIDLogContext adds workflow ID to log context */
func WithWorkflowIDLogContext(ctx context.Context, workflowID uuid.UUID) context.Context {
	return context.WithValue(ctx, workflowIDKey, workflowID.String())
}

/* WithStepIDLogContext adds step ID to log context */
func WithStepIDLogContext(ctx context.Context, stepID uuid.UUID) context.Context {
	return context.WithValue(ctx, stepIDKey, stepID.String())
}

/* WithSessionIDLogContext adds session ID to log context */
func WithSessionIDLogContext(ctx context.Context, sessionID uuid.UUID) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID.String())
}

/* WithAgentIDLogContext adds agent ID to log context */
func WithAgentIDLogContext(ctx context.Context, agentID uuid.UUID) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID.String())
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if id, ok := ctx.Value(key).(string); ok {
		return id
	}
	if id, ok := ctx.Value(key).(uuid.UUID); ok {
		return id.String()
	}
	return ""
}

/* GetRequestIDFromContext gets request ID from context */
func GetRequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

/* LoggerFromContext creates a zerolog logger with fields from context */
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	logger := log.Logger

	if requestID := stringFromContext(ctx, requestIDKey); requestID != "" {
		logger = logger.With().Str("request_id", requestID).Logger()
	}
	if workflowID := stringFromContext(ctx, workflowIDKey); workflowID != "" {
		logger = logger.With().Str("workflow_id", workflowID).Logger()
	}
	if stepID := stringFromContext(ctx, stepIDKey); stepID != "" {
		logger = logger.With().Str("step_id", stepID).Logger()
	}
	if sessionID := stringFromContext(ctx, sessionIDKey); sessionID != "" {
		logger = logger.With().Str("session_id", sessionID).Logger()
	}
	if agentID := stringFromContext(ctx, agentIDKey); agentID != "" {
		logger = logger.With().Str("agent_id", agentID).Logger()
	}

	return logger
}

/* LogWithContext logs a message with context fields */
func LogWithContext(ctx context.Context, level zerolog.Level, message string, fields map[string]interface{}) {
	logger := LoggerFromContext(ctx)
	event := logger.WithLevel(level)

	for key, value := range fields {
		event = event.Interface(key, value)
	}

	event.Msg(message)
}

/* DebugWithContext logs a debug message with context */
func DebugWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.DebugLevel, message, fields)
}

/* InfoWithContext logs an info message with context */
func InfoWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.InfoLevel, message, fields)
}

/* WarnWithContext logs a warning message with context */
func WarnWithContext(ctx context.Context, message string, fields map[string]interface{}) {
	LogWithContext(ctx, zerolog.WarnLevel, message, fields)
}

/* ErrorWithContext logs an error message with context */
func ErrorWithContext(ctx context.Context, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogWithContext(ctx, zerolog.ErrorLevel, message, fields)
}
