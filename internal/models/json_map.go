package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSONMap is a JSON object stored in a jsonb column.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSONMap)
		return nil
	}
	raw, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, j)
}

// Int reads an integer-valued key, tolerating the float64 that
// encoding/json produces on round-trips.
func (j JSONMap) Int(key string) (int, bool) {
	switch v := j[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// String reads a string-valued key.
func (j JSONMap) String(key string) string {
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}
