// Package codec converts between the on-disk markdown grammar and the
// structured Entity form. It performs no I/O.
//
// The grammar, per entity file:
//
//	# <name>
//
//	<observation>
//
//	## Relationships
//	- <verb> [[<target>]] <context?>
//
// Parsing is tolerant: a malformed line inside the relationships
// section is skipped and reported as a warning, never as an error, so
// an imperfect hand edit cannot discard the valid parts of a file.
package codec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/notegraph/notegraph-mcp/internal/models"
)

// RelationshipsHeading marks the start of the relationships section.
const RelationshipsHeading = "## Relationships"

var relationshipPattern = regexp.MustCompile(`^- (.*?) \[\[(.*?)\]\](?: (.*))?$`)

// Parse converts markdown text into an Entity. The returned warnings
// describe lines that were skipped or tolerated; they are non-fatal and
// the entity always carries everything that did parse.
func Parse(text string) (models.Entity, []string) {
	var (
		entity   models.Entity
		warnings []string
		inRel    bool
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimRight(raw, "\r")

		switch {
		case isRelationshipsHeading(line):
			inRel = true
			continue
		case strings.HasPrefix(line, "##"):
			inRel = false
			continue
		case strings.HasPrefix(line, "# "):
			if !inRel && entity.Name == "" {
				entity.Name = strings.TrimSpace(line[2:])
			}
			continue
		case line == "#":
			continue
		}

		if inRel {
			if strings.TrimSpace(line) == "" {
				continue
			}
			m := relationshipPattern.FindStringSubmatch(line)
			if m == nil {
				warnings = append(warnings, fmt.Sprintf("skipped malformed relationship line: %q", line))
				continue
			}
			rel := models.Relationship{Verb: m[1], Target: m[2]}
			if ctx := strings.TrimSpace(m[3]); ctx != "" {
				rel.Context = &ctx
			}
			if !containsRelationship(entity.Relationships, rel) {
				entity.Relationships = append(entity.Relationships, rel)
			}
			continue
		}

		if strings.TrimSpace(line) != "" {
			if !containsString(entity.Observations, line) {
				entity.Observations = append(entity.Observations, line)
			}
		}
	}

	if entity.Name == "" {
		warnings = append(warnings, "missing entity heading")
	}
	return entity, warnings
}

// Serialize renders an Entity back into markdown text. For any entity
// whose strings are free of newlines and link delimiters, Parse
// reproduces it exactly.
func Serialize(e models.Entity) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(e.Name)
	b.WriteString("\n\n")

	for _, obs := range e.Observations {
		b.WriteString(obs)
		b.WriteString("\n\n")
	}

	b.WriteString(RelationshipsHeading)
	b.WriteString("\n")
	for _, rel := range e.Relationships {
		b.WriteString(FormatRelationship(rel))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatRelationship renders a single relationship bullet line, without
// a trailing newline. An absent or empty context is omitted.
func FormatRelationship(rel models.Relationship) string {
	line := fmt.Sprintf("- %s [[%s]]", rel.Verb, rel.Target)
	if rel.Context != nil && *rel.Context != "" {
		line += " " + *rel.Context
	}
	return line
}

// isRelationshipsHeading matches the exact section heading, tolerating
// trailing whitespace but not extra heading text ("## Relationshipsology"
// is an ordinary section).
func isRelationshipsHeading(line string) bool {
	return strings.TrimRight(line, " \t") == RelationshipsHeading
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRelationship(list []models.Relationship, rel models.Relationship) bool {
	for _, v := range list {
		if v.Matches(rel) {
			return true
		}
	}
	return false
}
