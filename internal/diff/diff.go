// Package diff turns unified git diffs into change inputs for impact
// analysis.
package diff

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/sprite-ai/impactgate/internal/model"
)

// File is one file touched by a diff.
type File struct {
	OldName      string
	NewName      string
	IsNew        bool
	IsDeleted    bool
	IsRenamed    bool
	IsBinary     bool
	AddedLines   int
	DeletedLines int

	Added   []Line // added lines, numbered in the new file
	Removed []Line // removed lines, numbered in the old file
}

// Line is one added or removed line of a diff.
type Line struct {
	Number int
	Text   string
}

// Path returns the path the file has after the change, or before it for
// deletions.
func (f *File) Path() string {
	if f.IsDeleted || f.NewName == "" {
		return f.OldName
	}
	return f.NewName
}

// Operation classifies the change to the file.
func (f *File) Operation() model.OperationType {
	switch {
	case f.IsNew:
		return model.OpAdd
	case f.IsDeleted:
		return model.OpDelete
	default:
		return model.OpModify
	}
}

// DiffSet holds every file of a parsed diff.
type DiffSet struct {
	Files []*File
}

// Stats returns aggregate statistics.
func (ds *DiffSet) Stats() (files, added, deleted int) {
	files = len(ds.Files)
	for _, f := range ds.Files {
		added += f.AddedLines
		deleted += f.DeletedLines
	}
	return
}

// Paths returns the path of every file in diff order.
func (ds *DiffSet) Paths() []string {
	out := make([]string, 0, len(ds.Files))
	for _, f := range ds.Files {
		out = append(out, f.Path())
	}
	return out
}

// ChangeInput builds an analysis input targeting the files of the diff.
// An empty description is synthesized from the file operations, as in
// "Add a.go. Modify b.go, c.go. Delete d.go."
func (ds *DiffSet) ChangeInput(description string) model.ChangeInput {
	in := model.ChangeInput{
		Description: strings.TrimSpace(description),
		TargetFiles: ds.Paths(),
	}
	if in.Description == "" {
		in.Description = ds.describe()
	}
	return in
}

func (ds *DiffSet) describe() string {
	groups := map[model.OperationType][]string{}
	for _, f := range ds.Files {
		op := f.Operation()
		groups[op] = append(groups[op], f.Path())
	}

	var parts []string
	for _, g := range []struct {
		op   model.OperationType
		verb string
	}{
		{model.OpAdd, "Add"},
		{model.OpModify, "Modify"},
		{model.OpDelete, "Delete"},
	} {
		if files := groups[g.op]; len(files) > 0 {
			parts = append(parts, g.verb+" "+strings.Join(files, ", ")+".")
		}
	}
	return strings.Join(parts, " ")
}

// Parse reads a unified diff.
func Parse(raw string) (*DiffSet, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("diff: parse: %w", err)
	}

	ds := &DiffSet{}
	for _, f := range parsed {
		df := &File{
			OldName:   f.OldName,
			NewName:   f.NewName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsRenamed: f.IsRename,
			IsBinary:  f.IsBinary,
		}
		for _, frag := range f.TextFragments {
			df.AddedLines += int(frag.LinesAdded)
			df.DeletedLines += int(frag.LinesDeleted)

			newLine, oldLine := int(frag.NewPosition), int(frag.OldPosition)
			for _, l := range frag.Lines {
				text := strings.TrimRight(l.Line, "\n")
				switch l.Op {
				case gitdiff.OpAdd:
					df.Added = append(df.Added, Line{Number: newLine, Text: text})
					newLine++
				case gitdiff.OpDelete:
					df.Removed = append(df.Removed, Line{Number: oldLine, Text: text})
					oldLine++
				default:
					newLine++
					oldLine++
				}
			}
		}
		ds.Files = append(ds.Files, df)
	}
	return ds, nil
}

// GitDiff runs `git diff` in repoDir with args and returns its output.
func GitDiff(ctx context.Context, repoDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"diff"}, args...)...)
	cmd.Dir = repoDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("diff: git diff: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// GitDiffWorking returns the uncommitted changes against HEAD.
func GitDiffWorking(ctx context.Context, repoDir string) (string, error) {
	return GitDiff(ctx, repoDir, "HEAD")
}

// GitDiffRange returns the diff for a range like "main...HEAD".
func GitDiffRange(ctx context.Context, repoDir, commitRange string) (string, error) {
	return GitDiff(ctx, repoDir, commitRange)
}

// Load resolves a --diff flag value: empty or "HEAD" diffs the working
// tree, "-" reads a patch from stdin, anything containing ".." is a commit
// range, and anything else is a patch file.
func Load(ctx context.Context, repoDir, spec string, readFile func(string) ([]byte, error)) (*DiffSet, error) {
	var raw string
	var err error
	switch {
	case spec == "" || spec == "HEAD":
		raw, err = GitDiffWorking(ctx, repoDir)
	case strings.Contains(spec, ".."):
		raw, err = GitDiffRange(ctx, repoDir, spec)
	default:
		name := spec
		if spec == "-" {
			name = "/dev/stdin"
		}
		var data []byte
		data, err = readFile(name)
		if err != nil {
			err = fmt.Errorf("diff: read %s: %w", spec, err)
		}
		raw = string(data)
	}
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// RepoRoot returns the top-level directory of the git repository
// containing the working directory.
func RepoRoot(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("diff: not in a git repository: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
