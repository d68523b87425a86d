// Package parser turns free-text change descriptions into structured signal.
//
// Extraction is heuristic: fixed regular-expression tables for entities and
// operations, a stop-word filtered keyword set, and weighted keyword voting for
// the change category.
package parser

import (
	"log/slog"
	"maps"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/sprite-ai/impactgate/internal/model"
)

// Parser extracts entities, operations, keywords and a category from a change.
type Parser struct {
	logger  *slog.Logger
	stop    map[string]struct{}
	exclude map[string]struct{}
}

// Option configures a Parser.
type Option func(*Parser)

// WithStopWords adds words that never count as keywords, entities or
// operation targets.
func WithStopWords(words ...string) Option {
	return func(p *Parser) {
		for _, w := range words {
			p.stop[strings.ToLower(w)] = struct{}{}
		}
	}
}

// WithEntityExclusions adds terms that are never reported as entities.
func WithEntityExclusions(words ...string) Option {
	return func(p *Parser) {
		for _, w := range words {
			p.exclude[strings.ToLower(w)] = struct{}{}
		}
	}
}

// New creates a Parser with the built-in word lists extended by opts. A nil
// logger uses slog.Default().
func New(logger *slog.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Parser{
		logger:  logger,
		stop:    maps.Clone(stopWords),
		exclude: maps.Clone(entityExclusions),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts structured signal from input. It never fails; an empty
// description yields an empty feature change with base confidence.
func (p *Parser) Parse(input model.ChangeInput) model.ParsedChange {
	text := combinedText(input)

	entities := p.extractEntities(text)
	keywords := p.extractKeywords(text)
	ops := p.extractOperations(input.Description)
	if len(ops) == 0 {
		ops = inferOperation(keywords, entities)
	}

	changeType := input.ChangeType
	if changeType == "" {
		changeType = inferCategory(keywords, ops)
	}

	parsed := model.ParsedChange{
		Entities:   entities,
		Operations: ops,
		Keywords:   keywords,
		ChangeType: changeType,
		Confidence: confidence(entities, ops, keywords),
	}

	p.logger.Debug("parsed change",
		slog.String("change_type", string(parsed.ChangeType)),
		slog.Int("entities", len(entities)),
		slog.Int("operations", len(ops)),
		slog.Int("keywords", len(keywords)),
		slog.Float64("confidence", parsed.Confidence),
	)

	return parsed
}

// ParseFromTask parses a task given by title and description.
func (p *Parser) ParseFromTask(title, description string) model.ParsedChange {
	return p.Parse(model.ChangeInput{Description: joinText(title, description, ". ")})
}

// ParseFromSpec parses a spec document, attaching it to module when given.
func (p *Parser) ParseFromSpec(title, content, module string) model.ParsedChange {
	input := model.ChangeInput{Description: joinText(title, content, "\n")}
	if module != "" {
		input.TargetModules = []string{module}
	}
	return p.Parse(input)
}

func joinText(title, body, sep string) string {
	title = strings.TrimRight(strings.TrimSpace(title), ".")
	body = strings.TrimSpace(body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + sep + body
	}
}

// combinedText is the description plus humanized file names and module hints.
func combinedText(input model.ChangeInput) string {
	parts := []string{input.Description}
	for _, f := range input.TargetFiles {
		parts = append(parts, humanizeFile(f))
	}
	parts = append(parts, input.TargetModules...)
	return strings.Join(parts, " ")
}

func humanizeFile(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)
}

func (p *Parser) extractEntities(text string) []string {
	found := make(map[string]struct{})

	for _, m := range pascalRe.FindAllString(text, -1) {
		if !p.isExcluded(m) {
			found[m] = struct{}{}
		}
	}

	for _, re := range explicitEntityPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			word := m[1]
			lower := strings.ToLower(word)
			if _, stop := p.stop[lower]; stop {
				continue
			}
			if _, verb := phraseVerbs[lower]; verb {
				continue
			}
			if p.isExcluded(word) {
				continue
			}
			found[toPascal(word)] = struct{}{}
		}
	}

	return sortedKeys(found)
}

func (p *Parser) isExcluded(word string) bool {
	_, ok := p.exclude[strings.ToLower(word)]
	return ok
}

// toPascal converts snake, kebab or lower case names to PascalCase.
func toPascal(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	var b strings.Builder
	for _, part := range parts {
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}

func (p *Parser) extractKeywords(text string) []string {
	found := make(map[string]struct{})
	add := func(w string) {
		w = strings.ToLower(w)
		if len(w) <= 2 {
			return
		}
		if _, stop := p.stop[w]; stop {
			return
		}
		found[w] = struct{}{}
	}

	for _, tok := range wordRe.FindAllString(text, -1) {
		add(tok)
		if parts := splitCamel(tok); len(parts) > 1 {
			for _, part := range parts {
				add(part)
			}
		}
	}

	return sortedKeys(found)
}

// splitCamel splits camelCase and PascalCase identifiers at lower-to-upper
// boundaries.
func splitCamel(s string) []string {
	var parts []string
	start := 0
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		if unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

func (p *Parser) extractOperations(description string) []model.ParsedOperation {
	var ops []model.ParsedOperation
	seen := make(map[string]bool)

	for _, op := range operationPatterns {
		for _, m := range op.pattern.FindAllStringSubmatch(description, -1) {
			target := p.cleanTarget(m[2])
			if target == "" {
				continue
			}
			key := strings.ToLower(target)
			if seen[key] {
				continue
			}
			seen[key] = true
			ops = append(ops, model.ParsedOperation{
				Type:        op.opType,
				Target:      target,
				Description: strings.ToLower(m[1]) + " " + target,
			})
		}
	}

	return ops
}

func (p *Parser) cleanTarget(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " -./")
	if len(s) < 2 {
		return ""
	}
	if _, stop := p.stop[strings.ToLower(s)]; stop {
		return ""
	}
	if len(s) > 80 {
		s = strings.TrimSpace(s[:80])
	}
	return s
}

// inferOperation falls back to a single keyword-derived operation.
func inferOperation(keywords, entities []string) []model.ParsedOperation {
	kw := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		kw[k] = struct{}{}
	}

	for _, op := range operationPatterns {
		for _, word := range op.keywords {
			if _, ok := kw[word]; !ok {
				continue
			}
			target := "change"
			if len(entities) > 0 {
				target = entities[0]
			}
			return []model.ParsedOperation{{
				Type:        op.opType,
				Target:      target,
				Description: "inferred from keyword \"" + word + "\"",
				Inferred:    true,
			}}
		}
	}

	return nil
}

func inferCategory(keywords []string, ops []model.ParsedOperation) model.ChangeType {
	scores := make(map[model.ChangeType]int)

	kw := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		kw[k] = struct{}{}
	}

	for category, ck := range categoryKeywords {
		for _, word := range ck.keywords {
			if _, ok := kw[word]; ok {
				scores[category] += ck.weight
			}
		}
	}

	for _, op := range ops {
		bonus := 2
		if op.Inferred {
			bonus = 1
		}
		scores[operationCategory[op.Type]] += bonus
	}

	best := model.ChangeFeature
	bestScore, ties := 0, 0
	for _, category := range model.ChangeTypes {
		switch score := scores[category]; {
		case score > bestScore:
			best, bestScore, ties = category, score, 1
		case score == bestScore && score > 0:
			ties++
		}
	}

	if bestScore == 0 || ties > 1 {
		return model.ChangeFeature
	}
	return best
}

func confidence(entities []string, ops []model.ParsedOperation, keywords []string) float64 {
	c := 0.5
	c += min(0.2, 0.05*float64(len(entities)))
	c += min(0.2, 0.1*float64(len(ops)))
	for _, op := range ops {
		if !op.Inferred {
			c += 0.05
			break
		}
	}
	if len(keywords) > 5 {
		c += 0.05
	}
	return min(c, 1.0)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
