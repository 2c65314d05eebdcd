// Package service produces challenges from the LLM with the built-in catalog as fallback.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"learnhub/internal/challenge/catalog"
	"learnhub/internal/challenge/model"
	harness "learnhub/internal/harness/model"
	"learnhub/internal/llm"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	generatorSystemPrompt = "Return a valid, minified JSON object and nothing else."
	generatorTemperature  = 0.7
	generatorMaxTokens    = 1500
	defaultTopic          = "General"
)

var (
	slugPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

var languageHints = map[harness.Language]string{
	harness.Python:     "Use Python 3. Provide a function definition only (no input()).",
	harness.Java:       "Use Java 17. Provide public class Solution with a static method; no Scanner/System.in.",
	harness.JavaScript: "Use modern JavaScript (ES6+). Provide a function declaration only (no console.log or require).",
	harness.CPP:        "Use C++17. Provide a function definition only (no main() or cin/cout). Include necessary headers in solution.",
	harness.C:          "Use C99. Provide a function definition only (no main() or scanf/printf). Include necessary headers in solution.",
}

// GenerateInput selects what to generate. Empty fields mean any.
type GenerateInput struct {
	Topic      string
	Difficulty string
	Language   string
	ExcludeIDs []string
}

// GenerateResult is a challenge plus where it came from.
type GenerateResult struct {
	Challenge model.Challenge `json:"challenge"`
	Source    string          `json:"source"`
}

// Generator creates challenges.
type Generator struct {
	llm     llm.Completer
	catalog *catalog.Catalog
	newID   func() string
}

// NewGenerator creates a generator. completer may be nil or disabled, in which case the catalog is used.
func NewGenerator(completer llm.Completer, cat *catalog.Catalog) *Generator {
	return &Generator{
		llm:     completer,
		catalog: cat,
		newID:   func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:6] },
	}
}

// Generate asks the LLM for a challenge and falls back to the catalog on any failure.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	lang := harness.Python
	if strings.TrimSpace(in.Language) != "" {
		l, ok := harness.NormalizeLanguage(in.Language)
		if !ok {
			return nil, appErr.Newf(appErr.LanguageNotSupported, "Unsupported language: %s", in.Language).
				WithDetail("language", in.Language)
		}
		lang = l
	}
	difficulty, ok := model.NormalizeDifficulty(in.Difficulty)
	if !ok {
		return nil, appErr.Newf(appErr.InvalidDifficulty, "Invalid difficulty: %s", in.Difficulty)
	}
	topic := strings.TrimSpace(in.Topic)

	if g.llm != nil && g.llm.Enabled() {
		ch, err := g.fromLLM(ctx, topic, difficulty, lang, in.ExcludeIDs)
		if err == nil {
			return &GenerateResult{Challenge: ch, Source: model.SourceAI}, nil
		}
		logger.Warn(ctx, "challenge generation failed, using catalog",
			zap.String("topic", topic),
			zap.String("language", string(lang)),
			zap.Error(err),
		)
	}
	return g.fromCatalog(topic, difficulty, lang, in.ExcludeIDs)
}

func (g *Generator) fromCatalog(topic, difficulty string, lang harness.Language, exclude []string) (*GenerateResult, error) {
	ch, ok := g.catalog.Pick(topic, difficulty, exclude, lang)
	if !ok && difficulty != "" {
		ch, ok = g.catalog.Pick(topic, "", exclude, lang)
	}
	if !ok {
		return nil, appErr.New(appErr.ChallengePoolExhausted).
			WithMessage("No challenges available for this topic/difficulty")
	}
	return &GenerateResult{Challenge: ch, Source: model.SourceCatalog}, nil
}

// Generated is the challenge document the model must return.
type Generated struct {
	Title        string             `json:"title"`
	Prompt       string             `json:"prompt"`
	FunctionName string             `json:"functionName"`
	Signature    string             `json:"signature"`
	StarterCode  string             `json:"starterCode"`
	Solution     string             `json:"solution"`
	TestCases    []harness.TestCase `json:"testCases"`
}

func (g *Generator) fromLLM(ctx context.Context, topic, difficulty string, lang harness.Language, exclude []string) (model.Challenge, error) {
	reply, err := g.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: generatorSystemPrompt},
		{Role: "user", Content: buildPrompt(topic, difficulty, lang, exclude)},
	}, llm.Options{Temperature: generatorTemperature, MaxTokens: generatorMaxTokens})
	if err != nil {
		return model.Challenge{}, err
	}
	gen, err := ParseGenerated(reply)
	if err != nil {
		return model.Challenge{}, err
	}
	if topic == "" {
		topic = defaultTopic
	}
	if difficulty == "" {
		difficulty = model.DifficultyEasy
	}
	return model.Challenge{
		ID:           fmt.Sprintf("ai-%s-%s", slugify(gen.Title), g.newID()),
		Topic:        topic,
		Difficulty:   difficulty,
		Title:        gen.Title,
		Prompt:       firstNonEmpty(gen.Prompt, gen.Title),
		Language:     lang,
		FunctionName: gen.FunctionName,
		Signature:    gen.Signature,
		StarterCode:  gen.StarterCode,
		Solution:     gen.Solution,
		TestCases:    gen.TestCases,
	}, nil
}

// ParseGenerated extracts and validates a generated challenge. Any missing field fails the whole reply.
func ParseGenerated(reply string) (*Generated, error) {
	raw, err := llm.ExtractJSON(reply)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ChallengeInvalid, "model returned invalid JSON")
	}
	var gen Generated
	if err := json.Unmarshal(raw, &gen); err != nil {
		return nil, appErr.Wrapf(err, appErr.ChallengeInvalid, "model returned malformed challenge")
	}
	missing := make([]string, 0)
	for _, f := range []struct{ name, value string }{
		{"title", gen.Title},
		{"functionName", gen.FunctionName},
		{"signature", gen.Signature},
		{"starterCode", gen.StarterCode},
		{"solution", gen.Solution},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(gen.TestCases) == 0 {
		missing = append(missing, "testCases")
	}
	if len(missing) > 0 {
		return nil, appErr.Newf(appErr.ChallengeInvalid, "generated challenge is missing %s", strings.Join(missing, ", "))
	}
	if !identPattern.MatchString(gen.FunctionName) {
		return nil, appErr.Newf(appErr.ChallengeInvalid, "generated function name %q is not an identifier", gen.FunctionName)
	}
	return &gen, nil
}

func buildPrompt(topic, difficulty string, lang harness.Language, exclude []string) string {
	if topic == "" {
		topic = "General Programming"
	}
	if difficulty == "" {
		difficulty = model.DifficultyEasy
	}
	avoid := "Do not repeat recent challenges from this session."
	if len(exclude) > 0 {
		avoid = "Avoid repeating any challenge with these ids: " + strings.Join(exclude, ", ") + "."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Generate ONE %s coding challenge as STRICT JSON:\n", strings.ToUpper(string(lang)))
	b.WriteString(`{"title":"Challenge title","prompt":"Clear description with a tiny example",`)
	fmt.Fprintf(&b, `"language":"%s","functionName":"functionNameOnly",`, lang)
	b.WriteString(`"signature":"language-appropriate function signature only","starterCode":"starter code only",`)
	fmt.Fprintf(&b, `"solution":"full correct reference solution in %s",`, lang)
	b.WriteString(`"testCases":[{"args":[inputs...],"expected":output,"description":"short case desc"}]}` + "\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Topic: %s\n", topic)
	fmt.Fprintf(&b, "- Difficulty: %s\n", difficulty)
	b.WriteString("- Provide 4-6 testCases incl. an edge case.\n")
	fmt.Fprintf(&b, "- %s\n", languageHints[lang])
	b.WriteString("- The solution must pass all testCases.\n")
	fmt.Fprintf(&b, "- %s\n", avoid)
	b.WriteString("- IMPORTANT: Return ONLY minified JSON (no prose, no markdown, no fences).")
	return b.String()
}

func slugify(title string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if slug == "" {
		return "challenge"
	}
	return slug
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
