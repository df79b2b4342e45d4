package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringArray is stored as a JSON array in a text column.
type StringArray []string

func (a *StringArray) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan StringArray: %w", err)
	}
	if len(raw) == 0 {
		*a = StringArray{}
		return nil
	}
	return json.Unmarshal(raw, a)
}

func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

// First returns the first element, or "" for an empty array.
func (a StringArray) First() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

type ShippingAddress struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Ward     string `json:"ward,omitempty"`
	District string `json:"district,omitempty"`
	Province string `json:"province"`
}

func (s *ShippingAddress) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan ShippingAddress: %w", err)
	}
	if len(raw) == 0 {
		*s = ShippingAddress{}
		return nil
	}
	return json.Unmarshal(raw, s)
}

func (s ShippingAddress) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	return string(b), err
}

// JSONValue is a free-form JSON document, used by SystemSetting.
type JSONValue json.RawMessage

func (j *JSONValue) Scan(value interface{}) error {
	raw, err := jsonBytes(value)
	if err != nil {
		return fmt.Errorf("failed to scan JSONValue: %w", err)
	}
	*j = append((*j)[:0], raw...)
	return nil
}

func (j JSONValue) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

func (j JSONValue) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONValue) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", value)
	}
}
