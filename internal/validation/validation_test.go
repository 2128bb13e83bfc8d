/*-------------------------------------------------------------------------
 *
 * validation_test.go
 *    Tests for request validation helpers
 *
 * Copyright (c) 2024-2025, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/validation/validation_test.go
 *
 *-------------------------------------------------------------------------
 */

package validation

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadAndValidateBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"a":1}`))
	body, err := ReadAndValidateBody(req, 1024)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(body) != `{"a":1}` {
		t.Errorf("unexpected body: %s", body)
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(strings.Repeat("x", 100)))
	if _, err := ReadAndValidateBody(req, 10); err == nil {
		t.Error("expected oversized body to be rejected")
	}
}

func TestValidateUUIDRequired(t *testing.T) {
	if err := ValidateUUIDRequired("8e9f0c1a-2b3c-4d5e-8f90-112233445566", "id"); err != nil {
		t.Errorf("valid uuid rejected: %v", err)
	}
	if err := ValidateUUIDRequired("", "id"); err == nil {
		t.Error("expected empty uuid to be rejected")
	}
	if err := ValidateUUIDRequired("not-a-uuid", "id"); err == nil {
		t.Error("expected malformed uuid to be rejected")
	}
}

func TestValidateOneOf(t *testing.T) {
	if err := ValidateOneOf("fanout", "strategy", "fanout", "fallback"); err != nil {
		t.Errorf("allowed value rejected: %v", err)
	}
	if err := ValidateOneOf("quorum", "strategy", "fanout", "fallback"); err == nil {
		t.Error("expected disallowed value to be rejected")
	}
}
