package command

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldBool
	FieldStringList
	FieldJSON
	// FieldFile reads the named file and sends its content as a string.
	FieldFile
	// FieldJSONFile reads the named file and sends its content as raw JSON.
	FieldJSONFile
)

// Location tells where a field ends up in the request.
type Location int

const (
	InBody Location = iota
	InQuery
	InPath
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	// Key is the wire name. Several fields may share a key, e.g. code and code_file.
	Key string
	In  Location
}

// WireKey returns the name used on the wire.
func (f Field) WireKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// Command defines a CLI command binding.
type Command struct {
	Service      string
	Action       string
	Method       string
	PathTemplate string
	Summary      string
	Fields       []Field
}

// Name returns the "service action" registry key.
func (c Command) Name() string {
	return c.Service + " " + c.Action
}

// Missing returns required fields with no value for their wire key.
func (c Command) Missing(params Params) []Field {
	filled := make(map[string]bool, len(c.Fields))
	for _, field := range c.Fields {
		if strings.TrimSpace(params.Get(field.Name)) != "" {
			filled[field.WireKey()] = true
		}
	}
	var missing []Field
	for _, field := range c.Fields {
		if field.Required && !filled[field.WireKey()] {
			missing = append(missing, field)
		}
	}
	return missing
}

// HasField reports whether the command accepts a field with the given name.
func (c Command) HasField(name string) bool {
	for _, field := range c.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(value))
}

func ParseStringList(value string) []string {
	raw := strings.Split(value, ",")
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}

func ParseJSON(value string) (json.RawMessage, error) {
	raw := strings.TrimSpace(value)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("invalid json content")
	}
	return json.RawMessage(raw), nil
}
