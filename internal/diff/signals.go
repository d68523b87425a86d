package diff

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/sprite-ai/impactgate/internal/model"
)

// SignalKind groups the findings of a diff scan.
type SignalKind string

const (
	SignalSecurity   SignalKind = "security"
	SignalSchema     SignalKind = "schema"
	SignalDependency SignalKind = "dependency"
	SignalRemoval    SignalKind = "removal"
)

// Signal is something in the content of a diff that the description of
// the change may not mention.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	Category string     `json:"category,omitempty"`
	File     string     `json:"file"`
	Line     int        `json:"line,omitempty"` // 0 if file-level
	Detail   string     `json:"detail"`
}

func (s Signal) String() string {
	loc := s.File
	if s.Line > 0 {
		loc = fmt.Sprintf("%s:%d", s.File, s.Line)
	}
	return fmt.Sprintf("[%s] %s: %s", s.Kind, loc, s.Detail)
}

var securityPatterns = []struct {
	category string
	patterns []*regexp.Regexp
}{
	{"authentication", compilePatterns(
		`(?i)(auth|login|logout|signin|signup|password|credential|token|jwt|oauth|session|cookie)`,
	)},
	{"authorization", compilePatterns(
		`(?i)(permission|role|access.?control|rbac|acl|authorize|forbidden|is.?admin|can.?access)`,
	)},
	{"cryptography", compilePatterns(
		`(?i)(encrypt|decrypt|hmac|cipher|sha256|sha512|bcrypt|argon|scrypt|pbkdf)`,
		`(?i)(private.?key|public.?key|secret.?key|signing.?key|crypto\.)`,
	)},
	{"secrets", compilePatterns(
		`(?i)(api.?key|secret|password|token)\s*[:=]`,
		`(PRIVATE|SECRET|PASSWORD|TOKEN|KEY)\s*=\s*["']`,
	)},
	{"transport", compilePatterns(
		`(?i)(tls\.Config|InsecureSkipVerify|disable.?ssl|verify.?ssl.*false|allow.?origin)`,
	)},
	{"subprocess", compilePatterns(
		`(?i)(exec\.Command|os\.system|subprocess|child_process|shell_exec)`,
	)},
}

var schemaFilePatterns = []struct {
	pattern     *regexp.Regexp
	description string
}{
	{regexp.MustCompile(`(?i)migrat`), "database migration"},
	{regexp.MustCompile(`(?i)schema`), "schema definition"},
	{regexp.MustCompile(`\.sql$`), "SQL script"},
	{regexp.MustCompile(`\.proto$`), "protobuf definition"},
	{regexp.MustCompile(`(?i)(openapi|swagger)\.(ya?ml|json)$`), "OpenAPI spec"},
	{regexp.MustCompile(`(?i)\.graphql$`), "GraphQL schema"},
	{regexp.MustCompile(`\.prisma$`), "Prisma schema"},
}

var ddlPatterns = compilePatterns(
	`(?i)\b(CREATE|ALTER|DROP)\s+(TABLE|INDEX|VIEW|SCHEMA|TYPE|SEQUENCE)\b`,
	`(?i)\b(ADD|DROP|MODIFY)\s+COLUMN\b`,
	`(?i)\bRENAME\s+(TABLE|COLUMN)\b`,
)

var funcDefPatterns = compilePatterns(
	`^\s*func\s+(\w+)\s*[\[(]`,
	`^\s*func\s+\([^)]+\)\s+(\w+)\s*[\[(]`,
	`^\s*def\s+(\w+)\s*\(`,
	`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`,
	`^\s*(?:pub\s+)?(?:async\s+)?fn\s+(\w+)\s*[(<]`,
)

var depFiles = map[string]string{
	"go.mod":           "go",
	"package.json":     "npm",
	"requirements.txt": "pip",
	"Cargo.toml":       "cargo",
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Scan inspects the content of every file and returns its signals in diff
// order. Comment-only lines are ignored by the security scan.
func (ds *DiffSet) Scan() []Signal {
	var out []Signal
	for _, f := range ds.Files {
		out = append(out, scanSecurity(f)...)
		out = append(out, scanSchema(f)...)
		out = append(out, scanDependencies(f)...)
		out = append(out, scanRemovals(f)...)
	}
	return out
}

func scanSecurity(f *File) []Signal {
	var out []Signal
	for _, l := range f.Added {
		trimmed := strings.TrimSpace(l.Text)
		if isComment(trimmed) {
			continue
		}
		for _, sp := range securityPatterns {
			for _, re := range sp.patterns {
				if re.MatchString(l.Text) {
					out = append(out, Signal{
						Kind:     SignalSecurity,
						Category: sp.category,
						File:     f.Path(),
						Line:     l.Number,
						Detail:   trimmed,
					})
					break
				}
			}
		}
	}
	return out
}

func isComment(line string) bool {
	for _, p := range []string{"//", "#", "*", "/*", "--"} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func scanSchema(f *File) []Signal {
	var out []Signal
	name := f.Path()
	for _, sp := range schemaFilePatterns {
		if sp.pattern.MatchString(name) {
			out = append(out, Signal{Kind: SignalSchema, Category: sp.description, File: name, Detail: "changes to " + sp.description + " file"})
			break
		}
	}
	for _, l := range f.Added {
		for _, re := range ddlPatterns {
			if re.MatchString(l.Text) {
				out = append(out, Signal{Kind: SignalSchema, Category: "ddl", File: name, Line: l.Number, Detail: strings.TrimSpace(l.Text)})
				break
			}
		}
	}
	return out
}

func scanDependencies(f *File) []Signal {
	eco, ok := depFiles[path.Base(f.Path())]
	if !ok {
		return nil
	}
	var out []Signal
	for _, l := range f.Added {
		if dep := parseDepLine(strings.TrimSpace(l.Text), eco); dep != "" {
			out = append(out, Signal{Kind: SignalDependency, Category: eco, File: f.Path(), Line: l.Number, Detail: dep})
		}
	}
	return out
}

func parseDepLine(line, eco string) string {
	if line == "" || isComment(line) {
		return ""
	}
	switch eco {
	case "go":
		parts := strings.Fields(strings.TrimPrefix(line, "require "))
		if len(parts) >= 2 && strings.Contains(parts[0], "/") && strings.HasPrefix(parts[1], "v") {
			return parts[0]
		}
	case "npm":
		name, _, ok := strings.Cut(strings.TrimSuffix(line, ","), ":")
		name = strings.Trim(name, `" `)
		if ok && name != "" && !strings.Contains(name, "ependencies") && name != "name" && name != "version" {
			return name
		}
	case "pip":
		for _, sep := range []string{"==", ">=", "<=", "!=", "~=", ">"} {
			if idx := strings.Index(line, sep); idx > 0 {
				return strings.TrimSpace(line[:idx])
			}
		}
		if !strings.ContainsAny(line, " -") {
			return line
		}
	case "cargo":
		name, _, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		if ok && !strings.HasPrefix(line, "[") && !slices.Contains([]string{"name", "version", "edition", "authors", "description", "license"}, name) && !strings.Contains(name, ".") {
			return name
		}
	}
	return ""
}

// scanRemovals reports function definitions that disappear from a file.
// A definition re-added in the same file counts as moved, not removed.
func scanRemovals(f *File) []Signal {
	added := make(map[string]bool)
	for _, l := range f.Added {
		if name := funcName(l.Text); name != "" {
			added[name] = true
		}
	}
	var out []Signal
	for _, l := range f.Removed {
		name := funcName(l.Text)
		if name == "" || added[name] {
			continue
		}
		out = append(out, Signal{Kind: SignalRemoval, Category: "function", File: f.Path(), Line: l.Number, Detail: name})
	}
	return out
}

func funcName(line string) string {
	for _, re := range funcDefPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

// Annotate appends one sentence per signal kind to the description of in,
// so the keyword-driven stages of the pipeline see what the diff contains.
func Annotate(in model.ChangeInput, signals []Signal) model.ChangeInput {
	if len(signals) == 0 {
		return in
	}

	var categories, schemaFiles, deps, removed []string
	for _, s := range signals {
		switch s.Kind {
		case SignalSecurity:
			categories = appendUnique(categories, s.Category)
		case SignalSchema:
			schemaFiles = appendUnique(schemaFiles, s.File)
		case SignalDependency:
			deps = appendUnique(deps, s.Detail)
		case SignalRemoval:
			removed = appendUnique(removed, s.Detail)
		}
	}

	var notes []string
	if len(categories) > 0 {
		notes = append(notes, "Touches security-sensitive code ("+strings.Join(categories, ", ")+").")
	}
	if len(schemaFiles) > 0 {
		notes = append(notes, "Changes database schema in "+strings.Join(schemaFiles, ", ")+".")
	}
	if len(deps) > 0 {
		notes = append(notes, "Adds dependencies "+strings.Join(deps, ", ")+".")
	}
	if len(removed) > 0 {
		notes = append(notes, "Removes functions "+strings.Join(removed, ", ")+".")
	}

	in.Description = strings.TrimSpace(in.Description + " " + strings.Join(notes, " "))
	return in
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
