package diff

import (
	"strings"
	"testing"

	"github.com/sprite-ai/impactgate/internal/model"
)

const depDiff = `diff --git a/go.mod b/go.mod
index abc1234..def5678 100644
--- a/go.mod
+++ b/go.mod
@@ -3,4 +3,6 @@ module example.com/myapp
 go 1.21

 require (
+	github.com/newdep/foo v1.2.3
+	github.com/anotherdep/bar v0.1.0
 	github.com/existing/dep v1.0.0
 )
`

const migrationDiff = `diff --git a/db/migrations/002_users.sql b/db/migrations/002_users.sql
new file mode 100644
index 0000000..1111111
--- /dev/null
+++ b/db/migrations/002_users.sql
@@ -0,0 +1,2 @@
+ALTER TABLE users ADD COLUMN email TEXT;
+-- backfill happens in a job
`

const removalDiff = `diff --git a/billing/export.go b/billing/export.go
index abc1234..def5678 100644
--- a/billing/export.go
+++ b/billing/export.go
@@ -1,9 +1,6 @@
 package billing

-func ExportCSV(w io.Writer) error {
-	return nil
-}
-
 func (e *Exporter) Run() error {
+	// no longer writes csv
 	return nil
 }
`

func parse(t *testing.T, raw string) *DiffSet {
	t.Helper()
	ds, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return ds
}

func kinds(signals []Signal, kind SignalKind) []Signal {
	var out []Signal
	for _, s := range signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func TestParseKeepsLineContent(t *testing.T) {
	ds := parse(t, removalDiff)
	f := ds.Files[0]
	if len(f.Removed) != 4 || len(f.Added) != 1 {
		t.Fatalf("expected 4 removed and 1 added lines, got %d and %d", len(f.Removed), len(f.Added))
	}
	if f.Removed[0].Number != 3 || !strings.HasPrefix(f.Removed[0].Text, "func ExportCSV") {
		t.Errorf("unexpected first removed line %+v", f.Removed[0])
	}
	if f.Added[0].Number != 4 {
		t.Errorf("expected added line 4, got %d", f.Added[0].Number)
	}
}

func TestScanDependencies(t *testing.T) {
	deps := kinds(parse(t, depDiff).Scan(), SignalDependency)
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependency signals, got %d: %v", len(deps), deps)
	}
	if deps[0].Detail != "github.com/newdep/foo" || deps[0].Category != "go" || deps[0].Line != 6 {
		t.Errorf("unexpected first signal %+v", deps[0])
	}
}

func TestScanSchema(t *testing.T) {
	schema := kinds(parse(t, migrationDiff).Scan(), SignalSchema)
	if len(schema) != 2 {
		t.Fatalf("expected file and DDL signals, got %d: %v", len(schema), schema)
	}
	if schema[0].Line != 0 || schema[0].Category != "database migration" {
		t.Errorf("expected file-level migration signal, got %+v", schema[0])
	}
	if schema[1].Category != "ddl" || schema[1].Line != 1 {
		t.Errorf("expected DDL signal on line 1, got %+v", schema[1])
	}
}

func TestScanSecuritySkipsComments(t *testing.T) {
	raw := `diff --git a/auth/login.go b/auth/login.go
index abc1234..def5678 100644
--- a/auth/login.go
+++ b/auth/login.go
@@ -1,2 +1,4 @@
 package auth
+// password rules live elsewhere
+var apiKey = os.Getenv("API_KEY")

`
	sec := kinds(parse(t, raw).Scan(), SignalSecurity)
	if len(sec) != 1 {
		t.Fatalf("expected 1 security signal, got %d: %v", len(sec), sec)
	}
	if sec[0].Category != "secrets" || sec[0].Line != 3 {
		t.Errorf("unexpected signal %+v", sec[0])
	}
	if got := sec[0].String(); got != `[security] auth/login.go:3: var apiKey = os.Getenv("API_KEY")` {
		t.Errorf("String() = %q", got)
	}
}

func TestScanRemovals(t *testing.T) {
	removed := kinds(parse(t, removalDiff).Scan(), SignalRemoval)
	if len(removed) != 1 || removed[0].Detail != "ExportCSV" {
		t.Fatalf("expected ExportCSV removal, got %v", removed)
	}
}

func TestAnnotate(t *testing.T) {
	in := model.ChangeInput{Description: "Store user emails"}
	signals := append(parse(t, migrationDiff).Scan(), parse(t, depDiff).Scan()...)

	got := Annotate(in, signals).Description
	want := "Store user emails Changes database schema in db/migrations/002_users.sql. Adds dependencies github.com/newdep/foo, github.com/anotherdep/bar."
	if got != want {
		t.Errorf("description = %q, want %q", got, want)
	}

	if Annotate(in, nil).Description != in.Description {
		t.Error("no signals should leave the description alone")
	}
}
