package risk

// Vocabulary holds the term lists the baseline rules match against. All
// matches are case-insensitive substring matches.
type Vocabulary struct {
	SecurityTerms        []string `yaml:"security_terms"`
	SensitiveModules     []string `yaml:"sensitive_modules"`
	SchemaTerms          []string `yaml:"schema_terms"`
	SchemaFiles          []string `yaml:"schema_files"`
	APITerms             []string `yaml:"api_terms"`
	APIPaths             []string `yaml:"api_paths"`
	BreakingTerms        []string `yaml:"breaking_terms"`
	PerformanceTerms     []string `yaml:"performance_terms"`
	TestMarkers          []string `yaml:"test_markers"`
	CrossModuleThreshold int      `yaml:"cross_module_threshold" validate:"gte=0"`
}

// DefaultVocabulary returns a fresh copy of the built-in term lists.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		SecurityTerms: []string{
			"auth", "password", "token", "secret", "credential", "encrypt",
			"decrypt", "permission", "oauth", "jwt", "session", "crypto",
			"ssl", "tls", "security", "vulnerab", "sanitiz", "csrf", "xss",
			"injection", "rbac",
		},
		SensitiveModules: []string{
			"auth", "security", "payment", "billing", "crypto", "secret",
			"credential", "permission", "admin",
		},
		SchemaTerms: []string{
			"schema", "migration", "migrate", "database", "table", "column",
			"index", "sql", "alter", "ddl",
		},
		SchemaFiles: []string{"migration", "schema", ".sql"},
		APITerms: []string{
			"api", "endpoint", "route", "rest", "graphql", "grpc", "http",
			"request", "response", "contract", "controller",
		},
		APIPaths: []string{"/api/", "/routes/", "/endpoints/", ".controller.", ".route."},
		BreakingTerms: []string{
			"breaking", "remove", "rename", "deprecat", "incompatib",
			"signature", "drop",
		},
		PerformanceTerms: []string{
			"performance", "optimiz", "cache", "caching", "latency",
			"throughput", "slow", "memory", "cpu", "batch", "concurren",
			"scal", "bottleneck",
		},
		TestMarkers:          []string{"test", "spec", "coverage"},
		CrossModuleThreshold: 3,
	}
}

// merge overlays the non-empty lists of o onto v.
func (v Vocabulary) merge(o Vocabulary) Vocabulary {
	pick := func(dst *[]string, src []string) {
		if len(src) > 0 {
			*dst = src
		}
	}
	pick(&v.SecurityTerms, o.SecurityTerms)
	pick(&v.SensitiveModules, o.SensitiveModules)
	pick(&v.SchemaTerms, o.SchemaTerms)
	pick(&v.SchemaFiles, o.SchemaFiles)
	pick(&v.APITerms, o.APITerms)
	pick(&v.APIPaths, o.APIPaths)
	pick(&v.BreakingTerms, o.BreakingTerms)
	pick(&v.PerformanceTerms, o.PerformanceTerms)
	pick(&v.TestMarkers, o.TestMarkers)
	if o.CrossModuleThreshold > 0 {
		v.CrossModuleThreshold = o.CrossModuleThreshold
	}
	return v
}

// WithDefaults fills every empty list of v from DefaultVocabulary.
func (v Vocabulary) WithDefaults() Vocabulary {
	return DefaultVocabulary().merge(v)
}
