/*-------------------------------------------------------------------------
 *
 * jsonb.go
 *    JSONB column types for NeuronFlow
 *
 * Provides map and list wrappers implementing driver.Valuer and sql.Scanner
 * so jsonb columns round-trip through sqlx without manual marshalling.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/db/jsonb.go
 *
 *-------------------------------------------------------------------------
 */

package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

/* JSONBMap maps onto a jsonb object column */
type JSONBMap map[string]interface{}

/* Value implements driver.Valuer */
func (m JSONBMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("jsonb map marshalling failed: error=%w", err)
	}
	return data, nil
}

/* Scan implements sql.Scanner */
func (m *JSONBMap) Scan(src interface{}) error {
	if src == nil {
		*m = make(JSONBMap)
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb map scan failed: unsupported_type=%T", src)
	}

	if len(data) == 0 {
		*m = make(JSONBMap)
		return nil
	}

	return json.Unmarshal(data, m)
}

/* JSONBList maps onto a jsonb array column */
type JSONBList []map[string]interface{}

/* Value implements driver.Valuer */
func (l JSONBList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("jsonb list marshalling failed: error=%w", err)
	}
	return data, nil
}

/* Scan implements sql.Scanner */
func (l *JSONBList) Scan(src interface{}) error {
	if src == nil {
		*l = JSONBList{}
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb list scan failed: unsupported_type=%T", src)
	}

	if len(data) == 0 {
		*l = JSONBList{}
		return nil
	}

	return json.Unmarshal(data, l)
}

/* FromMap converts a plain map to JSONBMap, never returning nil */
func FromMap(m map[string]interface{}) JSONBMap {
	if m == nil {
		return make(JSONBMap)
	}
	return JSONBMap(m)
}
