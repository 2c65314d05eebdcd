package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const apiPrefix = "/api/v1"

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "run",
			Action:       "tests",
			Method:       "POST",
			PathTemplate: apiPrefix + "/ai/run-tests",
			Summary:      "run code against ad-hoc test cases",
			Fields: []Field{
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "function", Aliases: []string{"fn"}, Key: "functionName", Prompt: "function name", Type: FieldString},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "code_file", Aliases: []string{"file"}, Key: "code", Type: FieldFile},
				{Name: "cases", Key: "testCases", Prompt: "test cases (json)", Type: FieldJSON, Required: true},
				{Name: "cases_file", Key: "testCases", Type: FieldJSONFile},
			},
		},
		{
			Service:      "run",
			Action:       "toolchains",
			Method:       "GET",
			PathTemplate: apiPrefix + "/ai/toolchains",
			Summary:      "show which language toolchains are available",
		},
		{
			Service:      "challenge",
			Action:       "generate",
			Method:       "POST",
			PathTemplate: apiPrefix + "/ai/generate-challenge",
			Summary:      "generate a challenge (catalog fallback)",
			Fields: []Field{
				{Name: "topic", Prompt: "topic", Type: FieldString},
				{Name: "difficulty", Aliases: []string{"diff"}, Prompt: "difficulty", Type: FieldString},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString},
				{Name: "exclude", Key: "excludeIds", Type: FieldStringList},
			},
		},
		{
			Service:      "challenge",
			Action:       "next",
			Method:       "GET",
			PathTemplate: apiPrefix + "/learning/challenge",
			Summary:      "fetch the next uncompleted catalog challenge",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true, In: InQuery},
				{Name: "topic", Type: FieldString, In: InQuery},
				{Name: "difficulty", Aliases: []string{"diff"}, Type: FieldString, In: InQuery},
				{Name: "language", Aliases: []string{"lang"}, Type: FieldString, In: InQuery},
			},
		},
		{
			Service:      "challenge",
			Action:       "run",
			Method:       "POST",
			PathTemplate: apiPrefix + "/learning/run-tests",
			Summary:      "run a catalog challenge and record progress on success",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true},
				{Name: "challenge", Aliases: []string{"id"}, Key: "challengeId", Prompt: "challenge id", Type: FieldString, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code", Prompt: "code", Type: FieldString, Required: true},
				{Name: "code_file", Aliases: []string{"file"}, Key: "code", Type: FieldFile},
			},
		},
		{
			Service:      "progress",
			Action:       "get",
			Method:       "GET",
			PathTemplate: apiPrefix + "/progress/:username",
			Summary:      "show xp, level and badges",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true, In: InPath},
			},
		},
		{
			Service:      "award",
			Action:       "challenge",
			Method:       "POST",
			PathTemplate: apiPrefix + "/progress/award",
			Summary:      "award xp for a passed challenge",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true},
				{Name: "challenge", Aliases: []string{"id"}, Key: "challengeId", Prompt: "challenge id", Type: FieldString, Required: true},
				{Name: "title", Key: "challengeTitle", Type: FieldString},
				{Name: "difficulty", Aliases: []string{"diff"}, Type: FieldString},
				{Name: "language", Aliases: []string{"lang"}, Type: FieldString},
				{Name: "passed", Prompt: "passed (true/false)", Type: FieldBool, Required: true},
			},
		},
		{
			Service:      "quiz",
			Action:       "generate",
			Method:       "POST",
			PathTemplate: apiPrefix + "/quiz/generate",
			Summary:      "generate one multiple-choice question",
			Fields: []Field{
				{Name: "language", Aliases: []string{"lang"}, Type: FieldString},
				{Name: "topic", Type: FieldString},
				{Name: "difficulty", Aliases: []string{"diff"}, Type: FieldString},
			},
		},
		{
			Service:      "quiz",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: apiPrefix + "/quiz/submit",
			Summary:      "answer a generated question",
			Fields: []Field{
				{Name: "question", Aliases: []string{"id"}, Key: "questionId", Prompt: "question id", Type: FieldString, Required: true},
				{Name: "answer", Key: "answerIndex", Prompt: "answer index (0-3)", Type: FieldInt, Required: true},
			},
		},
		{
			Service:      "quiz",
			Action:       "finish",
			Method:       "POST",
			PathTemplate: apiPrefix + "/quiz/finish",
			Summary:      "finish a quiz session and collect xp",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true},
				{Name: "score", Prompt: "score", Type: FieldInt, Required: true},
				{Name: "total", Prompt: "total", Type: FieldInt, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Type: FieldString},
			},
		},
		{
			Service:      "activity",
			Action:       "log",
			Method:       "POST",
			PathTemplate: apiPrefix + "/activity/log",
			Summary:      "record a learner activity",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true},
				{Name: "action", Type: FieldString},
				{Name: "status", Type: FieldString},
				{Name: "request", Aliases: []string{"request_id"}, Key: "requestId", Type: FieldString},
				{Name: "details", Type: FieldJSON},
			},
		},
		{
			Service:      "activity",
			Action:       "history",
			Method:       "GET",
			PathTemplate: apiPrefix + "/activity/history/:username",
			Summary:      "list recent activities, newest first",
			Fields: []Field{
				{Name: "username", Aliases: []string{"user"}, Prompt: "username", Type: FieldString, Required: true, In: InPath},
				{Name: "limit", Type: FieldInt, In: InQuery},
			},
		},
		{
			Service:      "archive",
			Action:       "list",
			Method:       "GET",
			PathTemplate: apiPrefix + "/admin/archives",
			Summary:      "list archived run workspaces",
			Fields: []Field{
				{Name: "day", Type: FieldString, In: InQuery},
			},
		},
		{
			Service:      "archive",
			Action:       "link",
			Method:       "GET",
			PathTemplate: apiPrefix + "/admin/archives/link",
			Summary:      "presign a download link for an archive",
			Fields: []Field{
				{Name: "key", Prompt: "archive key", Type: FieldString, Required: true, In: InQuery},
			},
		},
		{
			Service:      "archive",
			Action:       "inspect",
			Method:       "GET",
			PathTemplate: apiPrefix + "/admin/archives/inspect",
			Summary:      "show the files inside an archive",
			Fields: []Field{
				{Name: "key", Prompt: "archive key", Type: FieldString, Required: true, In: InQuery},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name()] = cmd
	}
	return result
}

// Names returns registry keys in sorted order.
func Names(commands map[string]Command) []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	if missing := cmd.Missing(params); len(missing) > 0 {
		return RequestSpec{}, fmt.Errorf("missing parameter: %s", missing[0].Name)
	}

	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}
	query, err := buildQuery(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}
	if query != "" {
		path += "?" + query
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: map[string]string{},
		Body:    body,
	}, nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	for _, field := range cmd.Fields {
		if field.In != InPath {
			continue
		}
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			return "", fmt.Errorf("missing path parameter: %s", field.Name)
		}
		path = strings.ReplaceAll(path, ":"+field.WireKey(), url.PathEscape(value))
	}
	return path, nil
}

func buildQuery(cmd Command, params Params) (string, error) {
	values := url.Values{}
	for _, field := range cmd.Fields {
		if field.In != InQuery {
			continue
		}
		value := strings.TrimSpace(params.Get(field.Name))
		if value == "" {
			continue
		}
		if field.Type == FieldInt {
			if _, err := ParseInt(value); err != nil {
				return "", fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
		values.Set(field.WireKey(), value)
	}
	return values.Encode(), nil
}

func buildPayload(cmd Command, params Params) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	for _, field := range cmd.Fields {
		if field.In != InBody {
			continue
		}
		raw := params.Get(field.Name)
		if strings.TrimSpace(raw) == "" {
			continue
		}
		value, err := convertField(field, raw)
		if err != nil {
			return nil, err
		}
		payload[field.WireKey()] = value
	}
	return payload, nil
}

func convertField(field Field, raw string) (interface{}, error) {
	switch field.Type {
	case FieldInt:
		n, err := ParseInt(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return n, nil
	case FieldBool:
		b, err := ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return b, nil
	case FieldStringList:
		return ParseStringList(raw), nil
	case FieldJSON:
		value, err := ParseJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return value, nil
	case FieldFile:
		return ReadFile(raw)
	case FieldJSONFile:
		data, err := ReadFile(raw)
		if err != nil {
			return nil, err
		}
		value, err := ParseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
		}
		return value, nil
	default:
		return raw, nil
	}
}
