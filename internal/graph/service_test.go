package graph

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/notegraph/notegraph-mcp/internal/vault"
)

func strptr(s string) *string { return &s }

func setupService(t *testing.T) *Service {
	t.Helper()
	dir, err := os.MkdirTemp("", "notegraph-graph-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	v, err := vault.Open(dir)
	if err != nil {
		t.Fatalf("Open vault: %v", err)
	}
	return New(v)
}

func TestCreateEntity(t *testing.T) {
	s := setupService(t)

	e, err := s.CreateEntity("Alpha")
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if e.Name != "Alpha" {
		t.Errorf("Name = %q, want %q", e.Name, "Alpha")
	}
	if len(e.Observations) != 0 || len(e.Relationships) != 0 {
		t.Errorf("New entity should be empty: %+v", e)
	}
}

func TestCreateEntityAlreadyExists(t *testing.T) {
	s := setupService(t)

	if _, err := s.CreateEntity("Alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateEntity("Alpha"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("Second create = %v, want ErrAlreadyExists", err)
	}

	// After delete, the name is free again
	if err := s.DeleteEntity("Alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateEntity("Alpha"); err != nil {
		t.Errorf("Create after delete = %v, want success", err)
	}
}

func TestCreateEntityInvalidName(t *testing.T) {
	s := setupService(t)
	for _, name := range []string{"", "a/b", "a\nb"} {
		if _, err := s.CreateEntity(name); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CreateEntity(%q) = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestDeleteEntityNotFound(t *testing.T) {
	s := setupService(t)
	if err := s.DeleteEntity("Missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteEntity = %v, want ErrNotFound", err)
	}
}

func TestAddObservation(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	e, err := s.AddObservation("Alpha", "First fact")
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if len(e.Observations) != 1 || e.Observations[0] != "First fact" {
		t.Errorf("Observations = %v", e.Observations)
	}
}

func TestAddObservationIdempotent(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	s.AddObservation("Alpha", "Same fact")
	e, err := s.AddObservation("Alpha", "Same fact")
	if err != nil {
		t.Fatalf("Second AddObservation: %v", err)
	}
	if len(e.Observations) != 1 {
		t.Errorf("Expected exactly one copy, got %v", e.Observations)
	}
}

func TestAddObservationValidation(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	if _, err := s.AddObservation("Alpha", ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Empty observation = %v, want ErrInvalidInput", err)
	}
	if _, err := s.AddObservation("Alpha", "two\nlines"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Newline observation = %v, want ErrInvalidInput", err)
	}
	if _, err := s.AddObservation("Missing", "fact"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Absent entity = %v, want ErrNotFound", err)
	}
}

func TestAddObservationRejectsHeadingLikeText(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")
	s.AddObservation("Alpha", "a real fact")

	// A "#"-prefixed observation would parse back as a heading and be
	// silently lost; it must be rejected up front instead.
	for _, text := range []string{"# looks like a heading", "## Relationships", "#"} {
		if _, err := s.AddObservation("Alpha", text); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AddObservation(%q) = %v, want ErrInvalidInput", text, err)
		}
	}

	// Nothing was persisted and nothing was lost
	g, err := s.Graph()
	if err != nil {
		t.Fatal(err)
	}
	obs := g.Entities["Alpha"].Observations
	if len(obs) != 1 || obs[0] != "a real fact" {
		t.Errorf("Persisted observations = %v, want only the real fact", obs)
	}
}

func TestDeleteObservation(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")
	s.AddObservation("Alpha", "First")
	s.AddObservation("Alpha", "Second")

	e, err := s.DeleteObservation("Alpha", "First")
	if err != nil {
		t.Fatalf("DeleteObservation: %v", err)
	}
	if len(e.Observations) != 1 || e.Observations[0] != "Second" {
		t.Errorf("Observations = %v", e.Observations)
	}

	if _, err := s.DeleteObservation("Alpha", "First"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Deleting a missing observation = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteObservation("Missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Absent entity = %v, want ErrNotFound", err)
	}
}

func TestAddRelationship(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	e, err := s.AddRelationship("Alpha", "uses", "Beta", strptr("at work"))
	if err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	if len(e.Relationships) != 1 {
		t.Fatalf("Relationships = %v", e.Relationships)
	}
	rel := e.Relationships[0]
	if rel.Verb != "uses" || rel.Target != "Beta" || rel.Context == nil || *rel.Context != "at work" {
		t.Errorf("Relationship = %+v", rel)
	}
}

func TestAddRelationshipDangling(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("A")

	// B was never created; the reference is allowed to dangle
	if _, err := s.AddRelationship("A", "mentions", "B", nil); err != nil {
		t.Fatalf("Dangling AddRelationship: %v", err)
	}

	g, err := s.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if _, ok := g.Entities["B"]; ok {
		t.Error("B must not appear as an entity")
	}
	if len(g.Relationships) != 1 || g.Relationships[0].Source != "A" || g.Relationships[0].Target != "B" {
		t.Errorf("Relationships = %+v", g.Relationships)
	}
}

func TestAddRelationshipIdempotent(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	s.AddRelationship("Alpha", "uses", "Beta", strptr("ctx"))
	e, err := s.AddRelationship("Alpha", "uses", "Beta", strptr("ctx"))
	if err != nil {
		t.Fatalf("Second AddRelationship: %v", err)
	}
	if len(e.Relationships) != 1 {
		t.Errorf("Expected exactly one tuple, got %v", e.Relationships)
	}

	// A different context is a different tuple
	e, _ = s.AddRelationship("Alpha", "uses", "Beta", nil)
	if len(e.Relationships) != 2 {
		t.Errorf("Different context should append, got %v", e.Relationships)
	}
}

func TestAddRelationshipValidation(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	cases := []struct {
		verb, target string
		context      *string
	}{
		{"has\nnewline", "Beta", nil},
		{"uses", "Be\nta", nil},
		{"uses [[x", "Beta", nil},
		{"uses", "Be]]ta", nil},
		{"", "Beta", nil},
		{"uses", "", nil},
		{"uses", "Beta", strptr("ctx\nwith newline")},
	}
	for _, c := range cases {
		if _, err := s.AddRelationship("Alpha", c.verb, c.target, c.context); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AddRelationship(%q, %q) = %v, want ErrInvalidInput", c.verb, c.target, err)
		}
	}

	if _, err := s.AddRelationship("Alpha", "references", "Alpha", nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Self-reference = %v, want ErrInvalidInput", err)
	}
	if _, err := s.AddRelationship("Missing", "uses", "Beta", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Absent source = %v, want ErrNotFound", err)
	}
}

func TestAddRelationshipEmptyContextStoredAsAbsent(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	e, err := s.AddRelationship("Alpha", "uses", "Beta", strptr("   "))
	if err != nil {
		t.Fatalf("AddRelationship: %v", err)
	}
	if e.Relationships[0].Context != nil {
		t.Errorf("Whitespace-only context should store as absent, got %q", *e.Relationships[0].Context)
	}
}

func TestDeleteRelationshipExactMatch(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")
	s.AddRelationship("Alpha", "uses", "Beta", strptr("stored context"))

	// Differing context must not match
	if _, err := s.DeleteRelationship("Alpha", "uses", "Beta", strptr("other context")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Mismatched context = %v, want ErrNotFound", err)
	}
	// Absent context must not match a stored context
	if _, err := s.DeleteRelationship("Alpha", "uses", "Beta", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Absent context vs stored = %v, want ErrNotFound", err)
	}
	// Exact tuple succeeds
	e, err := s.DeleteRelationship("Alpha", "uses", "Beta", strptr("stored context"))
	if err != nil {
		t.Fatalf("DeleteRelationship: %v", err)
	}
	if len(e.Relationships) != 0 {
		t.Errorf("Relationships = %v", e.Relationships)
	}
}

func TestDeleteRelationshipValidation(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")
	s.AddRelationship("Alpha", "uses", "Beta", nil)

	cases := []struct {
		verb, target string
		context      *string
	}{
		{"uses [[x", "Beta", nil},
		{"uses", "Be]]ta", nil},
		{"has\nnewline", "Beta", nil},
		{"", "Beta", nil},
		{"uses", "", nil},
		{"uses", "Beta", strptr("ctx\nwith newline")},
	}
	for _, c := range cases {
		if _, err := s.DeleteRelationship("Alpha", c.verb, c.target, c.context); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("DeleteRelationship(%q, %q) = %v, want ErrInvalidInput", c.verb, c.target, err)
		}
	}

	// The stored relationship is untouched by the rejected calls
	e, err := s.DeleteRelationship("Alpha", "uses", "Beta", nil)
	if err != nil {
		t.Fatalf("DeleteRelationship: %v", err)
	}
	if len(e.Relationships) != 0 {
		t.Errorf("Relationships = %v", e.Relationships)
	}
}

func TestDeleteRelationshipEmptyVsAbsentContext(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")
	s.AddRelationship("Alpha", "uses", "Beta", nil)

	// An empty-string context is distinct from an absent one
	if _, err := s.DeleteRelationship("Alpha", "uses", "Beta", strptr("")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Empty-string context vs absent = %v, want ErrNotFound", err)
	}
	if _, err := s.DeleteRelationship("Alpha", "uses", "Beta", nil); err != nil {
		t.Errorf("Absent context vs absent = %v, want success", err)
	}
}

func TestDeleteEntityLeavesDanglingReferences(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")
	s.CreateEntity("Beta")
	s.AddRelationship("Alpha", "uses", "Beta", nil)

	if err := s.DeleteEntity("Beta"); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}

	// Alpha's relationship to Beta stays in place, now dangling
	g, err := s.Graph()
	if err != nil {
		t.Fatal(err)
	}
	alpha, ok := g.Entities["Alpha"]
	if !ok {
		t.Fatal("Alpha should still exist")
	}
	if len(alpha.Relationships) != 1 || alpha.Relationships[0].Target != "Beta" {
		t.Errorf("Alpha relationships = %+v", alpha.Relationships)
	}
	if _, ok := g.Entities["Beta"]; ok {
		t.Error("Beta should be gone")
	}
}

func TestGraphAttachesWarningsPerEntity(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Good")
	s.AddObservation("Good", "A fact")

	// A hand-edited file with a broken relationship line
	edited := "# Edited\n\nA fact\n\n## Relationships\n- broken line without link\n- uses [[Good]]\n"
	if err := os.WriteFile(filepath.Join(s.vault.Root(), "Edited.md"), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := s.Graph()
	if err != nil {
		t.Fatalf("Graph must not fail on a malformed file: %v", err)
	}
	editedEntity := g.Entities["Edited"]
	if len(editedEntity.Warnings) != 1 {
		t.Errorf("Edited warnings = %v", editedEntity.Warnings)
	}
	if len(editedEntity.Relationships) != 1 {
		t.Errorf("Valid relationship should survive: %+v", editedEntity.Relationships)
	}
	if len(g.Entities["Good"].Warnings) != 0 {
		t.Errorf("Good should carry no warnings: %v", g.Entities["Good"].Warnings)
	}
}

func TestGraphUsesFileStemOverHeading(t *testing.T) {
	s := setupService(t)

	mismatch := "# SomethingElse\n\nA fact\n\n## Relationships\n"
	if err := os.WriteFile(filepath.Join(s.vault.Root(), "Actual.md"), []byte(mismatch), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := s.Graph()
	if err != nil {
		t.Fatal(err)
	}
	e, ok := g.Entities["Actual"]
	if !ok {
		t.Fatal("Entity should be keyed by file stem")
	}
	if e.Name != "Actual" {
		t.Errorf("Name = %q, want the file stem", e.Name)
	}
	if len(e.Warnings) != 1 {
		t.Errorf("Expected a heading-mismatch warning, got %v", e.Warnings)
	}
}

func TestConcurrentAddObservations(t *testing.T) {
	s := setupService(t)
	s.CreateEntity("Alpha")

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.AddObservation("Alpha", "fact "+string(rune('a'+i))); err != nil {
				t.Errorf("AddObservation: %v", err)
			}
		}(i)
	}
	wg.Wait()

	g, err := s.Graph()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(g.Entities["Alpha"].Observations); got != n {
		t.Errorf("Expected %d observations with no lost updates, got %d", n, got)
	}
}

func TestMutationDropsUnparseableLinesButReportsThem(t *testing.T) {
	s := setupService(t)

	edited := "# Edited\n\nA fact\n\n## Relationships\n- broken line without link\n"
	if err := os.WriteFile(filepath.Join(s.vault.Root(), "Edited.md"), []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := s.AddObservation("Edited", "Another fact")
	if err != nil {
		t.Fatalf("AddObservation: %v", err)
	}
	if len(e.Warnings) != 1 {
		t.Errorf("The rewrite should report the dropped line: %v", e.Warnings)
	}
	if len(e.Observations) != 2 {
		t.Errorf("Observations = %v", e.Observations)
	}
}
