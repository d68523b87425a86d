package parser

import (
	"regexp"

	"github.com/sprite-ai/impactgate/internal/model"
)

// Multi-hump PascalCase identifiers like PaymentProcessor.
var pascalRe = regexp.MustCompile(`\b[A-Z][a-z0-9]+(?:[A-Z][a-z0-9]+)+\b`)

// Explicit entity phrasing: "table orders", "the user model".
var explicitEntityPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?i)\\b(?:entity|model|table|schema)\\s+[`'\"]?([A-Za-z_][A-Za-z0-9_]*)"),
	regexp.MustCompile(`(?i)\b([A-Za-z_][A-Za-z0-9_]*)\s+(?:entity|model|table|schema)\b`),
}

var wordRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*`)

// Generic, framework and language terms that look like entities but are not.
var entityExclusions = toSet(
	"todo", "readme", "javascript", "typescript", "github", "gitlab", "nodejs",
	"react", "vue", "angular", "api", "json", "yaml", "http", "https", "url",
	"id", "ui", "oauth", "graphql", "postgresql", "postgres", "mysql", "mongodb",
	"redis", "docker", "kubernetes", "string", "number", "boolean", "object",
	"array", "promise", "error", "date", "map", "set", "component", "service",
	"controller", "module", "index", "test", "tests", "spec", "utils", "helper",
	"helpers", "config", "type", "types", "interface", "entity", "model",
	"table", "schema", "websocket", "webpack", "macos", "iphone",
)

var stopWords = toSet(
	"the", "and", "for", "with", "from", "that", "this", "into", "onto", "are",
	"was", "were", "will", "should", "would", "could", "can", "has", "have",
	"had", "not", "but", "all", "any", "its", "our", "your", "their", "them",
	"then", "than", "there", "these", "those", "also", "when", "what", "which",
	"who", "how", "why", "where", "each", "only", "other", "some", "such",
	"more", "most", "very", "just", "over", "under", "via", "per", "about",
	"after", "before", "between", "through", "during", "without", "within",
	"make", "sure", "need", "needs", "want", "must", "may", "might", "being",
	"been", "does", "did", "done", "our", "out", "off", "too", "own", "same",
	"both", "few", "while", "again", "once", "here", "a", "an", "of", "to",
	"in", "on", "at", "by", "or", "is", "it", "be", "as", "so", "we", "us",
)

// Verbs that can sit next to "table"/"schema" without naming an entity.
var phraseVerbs = toSet(
	"add", "create", "update", "modify", "change", "remove", "delete", "drop",
	"migrate", "refactor", "implement", "introduce", "build", "fix", "extend",
	"improve", "rename", "alter", "new", "existing", "database", "data",
)

// operationPatterns is evaluated in order; the first operation to claim a
// target keeps it.
var operationPatterns = []struct {
	opType   model.OperationType
	pattern  *regexp.Regexp
	keywords []string
}{
	{
		opType: model.OpAdd,
		pattern: verbPattern(`add|adds|adding|added|create|creates|creating|implement|implements|implementing|` +
			`introduce|introduces|introducing|build|builds|building`),
		keywords: []string{"add", "create", "implement", "introduce", "build", "new", "feature"},
	},
	{
		opType: model.OpModify,
		pattern: verbPattern(`update|updates|updating|modify|modifies|modifying|change|changes|changing|` +
			`improve|improves|improving|extend|extends|extending|enhance|enhances|enhancing|fix|fixes|fixing|` +
			`adjust|adjusts|adjusting|tweak|tweaks`),
		keywords: []string{"update", "modify", "change", "improve", "enhance", "fix", "bugfix", "tweak", "adjust"},
	},
	{
		opType: model.OpDelete,
		pattern: verbPattern(`remove|removes|removing|delete|deletes|deleting|drop|drops|dropping|` +
			`deprecate|deprecates|deprecating|eliminate|eliminates|retire|retires`),
		keywords: []string{"remove", "delete", "drop", "deprecate", "deprecated", "deletion", "removal", "retire"},
	},
	{
		opType: model.OpRefactor,
		pattern: verbPattern(`refactor|refactors|refactoring|restructure|restructures|reorganize|reorganizes|` +
			`extract|extracts|simplify|simplifies|split|splits|decouple|decouples|clean\s+up|cleans\s+up`),
		keywords: []string{"refactor", "refactoring", "restructure", "cleanup", "reorganize", "simplify"},
	},
	{
		opType: model.OpMigrate,
		pattern: verbPattern(`migrate|migrates|migrating|upgrade|upgrades|upgrading|convert|converts|` +
			`converting|port|ports|porting|move|moves|moving`),
		keywords: []string{"migrate", "migration", "upgrade", "convert", "port"},
	},
}

// verbPattern matches a verb followed by its target phrase. The target runs
// until a preposition, a conjunction, punctuation or the end of the line.
func verbPattern(verbs string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)\b(` + verbs + `)\s+(?:(?:a|an|the|new|all|some|any)\s+)*` +
		`([a-z0-9][a-z0-9_./ -]*?)` +
		`(?:\s+(?:to|for|in|into|on|with|from|that|which|and|or|so|by|using|via|because|when|across)\b|[.,;:!?()]|$)`)
}

// Category weights and the words that vote for each category.
var categoryKeywords = map[model.ChangeType]struct {
	weight   int
	keywords []string
}{
	model.ChangeFeature: {1, []string{
		"add", "create", "new", "implement", "introduce", "feature", "support", "build", "enable",
	}},
	model.ChangeBugfix: {2, []string{
		"fix", "bug", "bugfix", "issue", "error", "crash", "broken", "regression", "defect", "patch", "hotfix",
	}},
	model.ChangeEnhancement: {1, []string{
		"improve", "enhance", "extend", "update", "modify", "tweak", "adjust", "polish",
	}},
	model.ChangeRefactor: {2, []string{
		"refactor", "refactoring", "restructure", "reorganize", "cleanup", "simplify", "extract", "rename", "decouple",
	}},
	model.ChangeMigration: {3, []string{
		"migrate", "migration", "schema", "upgrade", "database", "column", "table",
	}},
	model.ChangeDeletion: {3, []string{
		"remove", "delete", "drop", "deprecate", "deprecated", "eliminate", "retire", "sunset", "removal",
	}},
	model.ChangeSecurity: {3, []string{
		"security", "auth", "authentication", "authorization", "permission", "vulnerability",
		"encrypt", "encryption", "token", "password", "credential", "credentials",
	}},
	model.ChangePerformance: {2, []string{
		"performance", "optimize", "optimise", "speed", "cache", "caching", "latency", "slow", "faster",
		"memory", "throughput",
	}},
	model.ChangeConfiguration: {1, []string{
		"config", "configuration", "setting", "settings", "env", "environment", "flag", "flags",
	}},
	model.ChangeDocumentation: {1, []string{
		"doc", "docs", "documentation", "readme", "comment", "comments", "docstring",
	}},
}

// operationCategory maps an operation type to the category it votes for.
var operationCategory = map[model.OperationType]model.ChangeType{
	model.OpAdd:      model.ChangeFeature,
	model.OpModify:   model.ChangeEnhancement,
	model.OpDelete:   model.ChangeDeletion,
	model.OpRefactor: model.ChangeRefactor,
	model.OpMigrate:  model.ChangeMigration,
}

func toSet(words ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}
