// Package catalog serves the built-in challenges embedded in the binary.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"learnhub/internal/challenge/model"
	harness "learnhub/internal/harness/model"

	"gopkg.in/yaml.v3"
)

//go:embed challenges.yaml
var builtin []byte

type entry struct {
	ID           string            `yaml:"id"`
	Topic        string            `yaml:"topic"`
	Difficulty   string            `yaml:"difficulty"`
	Title        string            `yaml:"title"`
	Prompt       string            `yaml:"prompt"`
	FunctionName map[string]string `yaml:"function_name"`
	Signature    map[string]string `yaml:"signature"`
	StarterCode  map[string]string `yaml:"starter_code"`
	Solution     map[string]string `yaml:"solution"`
	TestCases    []yamlCase        `yaml:"test_cases"`

	cases []harness.TestCase
}

type yamlCase struct {
	Args        []any  `yaml:"args"`
	Expected    any    `yaml:"expected"`
	Description string `yaml:"description"`
}

type document struct {
	Challenges []entry `yaml:"challenges"`
}

// Catalog is an immutable set of challenges. It is safe for concurrent use.
type Catalog struct {
	entries []entry

	mu  sync.Mutex
	rnd *rand.Rand
}

// Default loads the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(builtin)
}

// Parse loads a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]struct{}, len(doc.Challenges))
	for i := range doc.Challenges {
		e := &doc.Challenges[i]
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog id %q", e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.FunctionName[string(harness.Python)] == "" {
			return nil, fmt.Errorf("catalog entry %q has no python variant", e.ID)
		}
		cases, err := convertCases(e.TestCases)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %q: %w", e.ID, err)
		}
		e.cases = cases
	}
	return &Catalog{
		entries: doc.Challenges,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}, nil
}

// Seed makes Pick deterministic.
func (c *Catalog) Seed(seed uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rnd = rand.New(rand.NewPCG(seed, seed))
}

// Len returns the number of challenges.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Pick returns a random challenge matching topic and difficulty that is not in exclude.
// Empty filters match everything. ok is false when nothing is left.
func (c *Catalog) Pick(topic, difficulty string, exclude []string, lang harness.Language) (model.Challenge, bool) {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	var pool []*entry
	for i := range c.entries {
		e := &c.entries[i]
		if _, ok := skip[e.ID]; ok {
			continue
		}
		if e.matches(topic, difficulty) {
			pool = append(pool, e)
		}
	}
	if len(pool) == 0 {
		return model.Challenge{}, false
	}
	c.mu.Lock()
	idx := c.rnd.IntN(len(pool))
	c.mu.Unlock()
	return pool[idx].project(lang), true
}

// FindByID returns the challenge with id projected onto lang.
func (c *Catalog) FindByID(id string, lang harness.Language) (model.Challenge, bool) {
	for i := range c.entries {
		if c.entries[i].ID == id {
			return c.entries[i].project(lang), true
		}
	}
	return model.Challenge{}, false
}

// List returns every challenge matching topic and difficulty, in catalog order.
func (c *Catalog) List(topic, difficulty string, lang harness.Language) []model.Challenge {
	out := make([]model.Challenge, 0)
	for i := range c.entries {
		if c.entries[i].matches(topic, difficulty) {
			out = append(out, c.entries[i].project(lang))
		}
	}
	return out
}

func (e *entry) matches(topic, difficulty string) bool {
	if topic != "" && !strings.EqualFold(e.Topic, topic) {
		return false
	}
	if difficulty != "" && !strings.EqualFold(e.Difficulty, difficulty) {
		return false
	}
	return true
}

// project picks the language variant, falling back to python.
func (e *entry) project(lang harness.Language) model.Challenge {
	if lang == "" {
		lang = harness.Python
	}
	pick := func(m map[string]string) string {
		if v, ok := m[string(lang)]; ok && v != "" {
			return v
		}
		return m[string(harness.Python)]
	}
	cases := make([]harness.TestCase, len(e.cases))
	copy(cases, e.cases)
	return model.Challenge{
		ID:           e.ID,
		Topic:        e.Topic,
		Difficulty:   e.Difficulty,
		Title:        e.Title,
		Prompt:       e.Prompt,
		Language:     lang,
		FunctionName: pick(e.FunctionName),
		Signature:    pick(e.Signature),
		StarterCode:  pick(e.StarterCode),
		Solution:     pick(e.Solution),
		TestCases:    cases,
	}
}

func convertCases(in []yamlCase) ([]harness.TestCase, error) {
	out := make([]harness.TestCase, 0, len(in))
	for i, yc := range in {
		tc := harness.TestCase{Description: yc.Description, Args: make([]json.RawMessage, 0, len(yc.Args))}
		for _, arg := range yc.Args {
			raw, err := json.Marshal(arg)
			if err != nil {
				return nil, fmt.Errorf("case %d arg: %w", i+1, err)
			}
			tc.Args = append(tc.Args, raw)
		}
		raw, err := json.Marshal(yc.Expected)
		if err != nil {
			return nil, fmt.Errorf("case %d expected: %w", i+1, err)
		}
		tc.Expected = raw
		out = append(out, tc)
	}
	return out, nil
}
