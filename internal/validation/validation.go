/*-------------------------------------------------------------------------
 *
 * validation.go
 *    Request validation helpers for NeuronFlow
 *
 * Provides body size limits and common field validators shared by the
 * API handlers.
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/validation/validation.go
 *
 *-------------------------------------------------------------------------
 */

package validation

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

/* ReadAndValidateBody reads the request body enforcing a maximum size */
func ReadAndValidateBody(r *http.Request, maxSize int64) ([]byte, error) {
	if r.Body == nil {
		return nil, fmt.Errorf("request body validation failed: body_missing=true")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("request body validation failed: read_error=%w", err)
	}
	if int64(len(body)) > maxSize {
		return nil, fmt.Errorf("request body validation failed: body_size=%d, max_size=%d", len(body), maxSize)
	}
	return body, nil
}

/* ValidateUUIDRequired validates a required UUID path or field value */
func ValidateUUIDRequired(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("validation failed: field='%s', required=true", field)
	}
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Errorf("validation failed: field='%s', invalid_uuid='%s', error=%w", field, value, err)
	}
	return nil
}

/* ValidateStringRequired validates a required non-empty string */
func ValidateStringRequired(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("validation failed: field='%s', required=true", field)
	}
	return nil
}

/* ValidateOneOf validates that a value is one of the allowed set */
func ValidateOneOf(value, field string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("validation failed: field='%s', value='%s', allowed=%v", field, value, allowed)
}
