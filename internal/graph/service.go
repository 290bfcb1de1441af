// Package graph implements the knowledge-graph operations on top of
// the vault and the codec.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/notegraph/notegraph-mcp/internal/codec"
	"github.com/notegraph/notegraph-mcp/internal/models"
	"github.com/notegraph/notegraph-mcp/internal/vault"
)

// Error taxonomy surfaced to callers. Anything outside these three is
// an I/O failure from the underlying storage.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// graphReadConcurrency bounds parallel file reads during a full graph
// load.
const graphReadConcurrency = 8

// Service orchestrates the vault and the codec and serializes
// concurrent mutations per entity.
type Service struct {
	vault *vault.Vault

	// mu guards locks. Each entity identifier gets its own mutex so
	// operations on different entities proceed in parallel. Entries
	// are never removed; vaults are small and human-curated.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Service backed by the given vault.
func New(v *vault.Vault) *Service {
	return &Service{vault: v, locks: make(map[string]*sync.Mutex)}
}

// lock acquires the exclusive lock for an entity identifier and
// returns the release function.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// identifier validates a name against the vault's rules, mapping a
// rejection into the InvalidInput class.
func (s *Service) identifier(name string) (string, error) {
	id, err := s.vault.Identifier(name)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return id, nil
}

// load reads and parses one entity. The entity's name always comes
// from its file identifier; a missing or disagreeing heading is a
// warning, not an error.
func (s *Service) load(name, id string) (*models.Entity, error) {
	text, err := s.vault.Read(name)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	e, warnings := codec.Parse(text)
	if e.Name != "" && e.Name != id {
		warnings = append(warnings, fmt.Sprintf("heading %q disagrees with filename %q", e.Name, id))
	}
	e.Name = id
	e.Warnings = warnings
	normalize(&e)
	return &e, nil
}

// store serializes an entity and atomically rewrites its file.
func (s *Service) store(e *models.Entity) error {
	if err := s.vault.Write(e.Name, codec.Serialize(*e)); err != nil {
		return fmt.Errorf("write entity %q: %w", e.Name, err)
	}
	return nil
}

// CreateEntity creates a new entity file containing only the heading
// and an empty relationships section.
func (s *Service) CreateEntity(name string) (*models.Entity, error) {
	id, err := s.identifier(name)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	exists, err := s.vault.Exists(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("entity %q: %w", name, ErrAlreadyExists)
	}

	e := &models.Entity{Name: id}
	normalize(e)
	if err := s.store(e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteEntity removes an entity's file. Relationships in other
// entities that point at it are left untouched and become dangling
// references.
func (s *Service) DeleteEntity(name string) error {
	id, err := s.identifier(name)
	if err != nil {
		return err
	}
	unlock := s.lock(id)
	defer unlock()

	err = s.vault.Delete(name)
	if errors.Is(err, vault.ErrNotFound) {
		return fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	return err
}

// AddObservation appends an observation to an entity. Adding text that
// is already present verbatim is a no-op.
func (s *Service) AddObservation(name, text string) (*models.Entity, error) {
	if err := validateObservation(text); err != nil {
		return nil, err
	}
	id, err := s.identifier(name)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	e, err := s.load(name, id)
	if err != nil {
		return nil, err
	}
	for _, obs := range e.Observations {
		if obs == text {
			return e, nil
		}
	}
	e.Observations = append(e.Observations, text)
	if err := s.store(e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteObservation removes the observation exactly equal to text.
func (s *Service) DeleteObservation(name, text string) (*models.Entity, error) {
	id, err := s.identifier(name)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	e, err := s.load(name, id)
	if err != nil {
		return nil, err
	}
	for i, obs := range e.Observations {
		if obs == text {
			e.Observations = append(e.Observations[:i], e.Observations[i+1:]...)
			if err := s.store(e); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, fmt.Errorf("observation %q on entity %q: %w", text, name, ErrNotFound)
}

// AddRelationship appends a (verb, target, context) link to the source
// entity. The target entity need not exist. Adding a tuple that is
// already present is a no-op. An empty or all-whitespace context is
// stored as absent: the file grammar cannot represent a present-empty
// context.
func (s *Service) AddRelationship(source, verb, target string, context *string) (*models.Entity, error) {
	if err := validateRelationshipPart("verb", verb); err != nil {
		return nil, err
	}
	if err := validateRelationshipPart("target", target); err != nil {
		return nil, err
	}
	if context != nil && strings.Contains(*context, "\n") {
		return nil, fmt.Errorf("%w: context must not contain a newline", ErrInvalidInput)
	}
	if source == target {
		return nil, fmt.Errorf("%w: entity %q cannot relate to itself", ErrInvalidInput, source)
	}

	rel := models.Relationship{Verb: verb, Target: target}
	if context != nil {
		if ctx := strings.TrimSpace(*context); ctx != "" {
			rel.Context = &ctx
		}
	}

	id, err := s.identifier(source)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	e, err := s.load(source, id)
	if err != nil {
		return nil, err
	}
	for _, existing := range e.Relationships {
		if existing.Matches(rel) {
			return e, nil
		}
	}
	e.Relationships = append(e.Relationships, rel)
	if err := s.store(e); err != nil {
		return nil, err
	}
	return e, nil
}

// DeleteRelationship removes the relationship matching the exact
// (verb, target, context) tuple, including context presence/absence.
// No context normalization is applied here.
func (s *Service) DeleteRelationship(source, verb, target string, context *string) (*models.Entity, error) {
	if err := validateRelationshipPart("verb", verb); err != nil {
		return nil, err
	}
	if err := validateRelationshipPart("target", target); err != nil {
		return nil, err
	}
	if context != nil && strings.Contains(*context, "\n") {
		return nil, fmt.Errorf("%w: context must not contain a newline", ErrInvalidInput)
	}
	rel := models.Relationship{Verb: verb, Target: target, Context: context}

	id, err := s.identifier(source)
	if err != nil {
		return nil, err
	}
	unlock := s.lock(id)
	defer unlock()

	e, err := s.load(source, id)
	if err != nil {
		return nil, err
	}
	for i, existing := range e.Relationships {
		if existing.Matches(rel) {
			e.Relationships = append(e.Relationships[:i], e.Relationships[i+1:]...)
			if err := s.store(e); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, fmt.Errorf("relationship %s on entity %q: %w", codec.FormatRelationship(rel), source, ErrNotFound)
}

// Graph lists the vault and assembles the full knowledge graph,
// reading entity files in parallel. It takes no global lock, so a
// mutation racing with the load may be reflected in some entities and
// not others; per-file reads are still atomic. An entity's parse
// warnings are attached to that entity and never fail the whole call.
func (s *Service) Graph() (*models.KnowledgeGraph, error) {
	ids, err := s.vault.List()
	if err != nil {
		return nil, err
	}

	entities := make(map[string]models.Entity, len(ids))
	var entMu sync.Mutex

	var g errgroup.Group
	g.SetLimit(graphReadConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			e, err := s.load(id, id)
			if errors.Is(err, ErrNotFound) {
				// Deleted between List and Read. Accepted race.
				return nil
			}
			if err != nil {
				return err
			}
			entMu.Lock()
			entities[id] = *e
			entMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	graph := &models.KnowledgeGraph{
		Entities:      entities,
		Relationships: []models.GraphRelationship{},
	}
	for _, id := range ids {
		e, ok := entities[id]
		if !ok {
			continue
		}
		for _, rel := range e.Relationships {
			graph.Relationships = append(graph.Relationships, models.GraphRelationship{
				Source:  e.Name,
				Verb:    rel.Verb,
				Target:  rel.Target,
				Context: rel.Context,
			})
		}
	}
	return graph, nil
}

// validateLine rejects empty text and embedded newlines.
func validateLine(field, text string) error {
	if text == "" {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidInput, field)
	}
	if strings.Contains(text, "\n") {
		return fmt.Errorf("%w: %s must not contain a newline", ErrInvalidInput, field)
	}
	return nil
}

// validateObservation additionally rejects the heading marker: a
// "#"-prefixed line would read back as a heading, not an observation,
// so accepting one would silently lose it on the next parse.
func validateObservation(text string) error {
	if err := validateLine("observation", text); err != nil {
		return err
	}
	if strings.HasPrefix(text, "#") {
		return fmt.Errorf("%w: observation must not start with \"#\", which is reserved for headings", ErrInvalidInput)
	}
	return nil
}

// validateRelationshipPart additionally rejects the link delimiters,
// which are reserved by the file grammar.
func validateRelationshipPart(field, text string) error {
	if err := validateLine(field, text); err != nil {
		return err
	}
	if strings.Contains(text, "[[") || strings.Contains(text, "]]") {
		return fmt.Errorf("%w: %s must not contain link delimiters", ErrInvalidInput, field)
	}
	return nil
}

// normalize replaces nil slices so results always serialize with
// explicit empty lists.
func normalize(e *models.Entity) {
	if e.Observations == nil {
		e.Observations = []string{}
	}
	if e.Relationships == nil {
		e.Relationships = []models.Relationship{}
	}
}
