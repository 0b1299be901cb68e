// Package roster loads the student allow-list from YAML and imports it into a
// student directory.
//
// A roster file lists students either as plain addresses or as entries with
// several addresses each:
//
//	students:
//	  - agent@example.com
//	  - name: Ada
//	    emails: [ada@example.com, ada@school.example]
package roster

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/chaosarchitect/missions/internal/services/missions/mission"
	"github.com/chaosarchitect/missions/internal/services/missions/storage"
)

// File is the decoded roster document.
type File struct {
	Students []Entry `yaml:"students"`
}

// Entry is one roster row. A row may carry several addresses for the same
// student.
type Entry struct {
	Name   string   `yaml:"name"`
	Emails []string `yaml:"emails"`
}

// UnmarshalYAML accepts both the plain string and the mapping form.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		e.Emails = []string{value.Value}
		return nil
	}

	type rawEntry Entry
	var raw rawEntry
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*e = Entry(raw)
	return nil
}

// Parse decodes a roster and returns its distinct folded addresses in
// ascending order. Blank addresses are skipped; malformed ones are an error.
func Parse(r io.Reader) ([]string, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	seen := make(map[string]struct{})
	for i, entry := range file.Students {
		for _, raw := range entry.Emails {
			if mission.FoldEmail(raw) == "" {
				continue
			}
			email, err := mission.NormalizeEmail(raw)
			if err != nil {
				return nil, fmt.Errorf("roster entry %d: %q: %w", i+1, raw, err)
			}
			seen[email] = struct{}{}
		}
	}

	emails := make([]string, 0, len(seen))
	for email := range seen {
		emails = append(emails, email)
	}
	slices.Sort(emails)
	return emails, nil
}

// Load reads and parses a roster file.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Import registers every address with the directory and returns how many were
// written. Existing students are left as they are.
func Import(ctx context.Context, dst storage.StudentRoster, emails []string) (int, error) {
	if dst == nil {
		return 0, fmt.Errorf("student roster is not configured")
	}
	for i, email := range emails {
		if err := dst.PutStudent(ctx, email); err != nil {
			return i, fmt.Errorf("import %s: %w", email, err)
		}
	}
	return len(emails), nil
}
