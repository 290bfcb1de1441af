// Package tools defines the MCP tool inputs and handlers for the
// knowledge graph operations.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/notegraph/notegraph-mcp/internal/graph"
	"github.com/notegraph/notegraph-mcp/internal/models"
)

// GraphTools holds references needed by the knowledge graph tool
// handlers.
type GraphTools struct {
	Service *graph.Service
}

// --- Input types ---

type CreateEntityInput struct {
	Name string `json:"name" jsonschema:"Name of the entity to create"`
}

type DeleteEntityInput struct {
	Name string `json:"name" jsonschema:"Name of the entity to delete"`
}

type AddObservationInput struct {
	EntityName  string `json:"entity_name" jsonschema:"Name of the entity"`
	Observation string `json:"observation" jsonschema:"Observation text to add"`
}

type DeleteObservationInput struct {
	EntityName  string `json:"entity_name" jsonschema:"Name of the entity"`
	Observation string `json:"observation" jsonschema:"Observation text to delete, must match exactly"`
}

type RelationshipInput struct {
	SourceEntityName string  `json:"source_entity_name" jsonschema:"Source entity name"`
	VerbPreposition  string  `json:"verb_preposition" jsonschema:"Relationship verb or preposition (e.g. uses, named_after)"`
	TargetEntity     string  `json:"target_entity" jsonschema:"Target entity name; it need not exist"`
	Context          *string `json:"context,omitempty" jsonschema:"Optional context for the relationship"`
}

type CreateEntitiesBatchInput struct {
	EntityNames []string `json:"entity_names" jsonschema:"Names of the entities to create"`
}

type ObservationItem struct {
	EntityName  string `json:"entity_name" jsonschema:"Name of the entity"`
	Observation string `json:"observation" jsonschema:"Observation text to add"`
}

type AddObservationsBatchInput struct {
	Observations []ObservationItem `json:"observations" jsonschema:"Observations to add"`
}

type AddRelationshipsBatchInput struct {
	Relationships []RelationshipInput `json:"relationships" jsonschema:"Relationships to add"`
}

// --- Handlers ---

func (t *GraphTools) CreateEntity(_ context.Context, _ *mcp.CallToolRequest, input CreateEntityInput) (*mcp.CallToolResult, any, error) {
	e, err := t.Service.CreateEntity(input.Name)
	if err != nil {
		return serviceError("create entity", err), nil, nil
	}
	return toolJSON(e)
}

func (t *GraphTools) DeleteEntity(_ context.Context, _ *mcp.CallToolRequest, input DeleteEntityInput) (*mcp.CallToolResult, any, error) {
	if err := t.Service.DeleteEntity(input.Name); err != nil {
		return serviceError("delete entity", err), nil, nil
	}
	return toolText(fmt.Sprintf("Entity %q deleted. Relationships in other entities that point at it are left as dangling references.", input.Name)), nil, nil
}

func (t *GraphTools) AddObservation(_ context.Context, _ *mcp.CallToolRequest, input AddObservationInput) (*mcp.CallToolResult, any, error) {
	e, err := t.Service.AddObservation(input.EntityName, input.Observation)
	if err != nil {
		return serviceError("add observation", err), nil, nil
	}
	return toolJSON(e)
}

func (t *GraphTools) DeleteObservation(_ context.Context, _ *mcp.CallToolRequest, input DeleteObservationInput) (*mcp.CallToolResult, any, error) {
	e, err := t.Service.DeleteObservation(input.EntityName, input.Observation)
	if err != nil {
		return serviceError("delete observation", err), nil, nil
	}
	return toolJSON(e)
}

func (t *GraphTools) AddRelationship(_ context.Context, _ *mcp.CallToolRequest, input RelationshipInput) (*mcp.CallToolResult, any, error) {
	e, err := t.Service.AddRelationship(input.SourceEntityName, input.VerbPreposition, input.TargetEntity, input.Context)
	if err != nil {
		return serviceError("add relationship", err), nil, nil
	}
	return toolJSON(e)
}

func (t *GraphTools) DeleteRelationship(_ context.Context, _ *mcp.CallToolRequest, input RelationshipInput) (*mcp.CallToolResult, any, error) {
	e, err := t.Service.DeleteRelationship(input.SourceEntityName, input.VerbPreposition, input.TargetEntity, input.Context)
	if err != nil {
		return serviceError("delete relationship", err), nil, nil
	}
	return toolJSON(e)
}

func (t *GraphTools) GetGraph(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	g, err := t.Service.Graph()
	if err != nil {
		return serviceError("get graph", err), nil, nil
	}
	return toolJSON(g)
}

// --- Batch handlers ---
//
// Batch tools process items independently: a failed item is reported
// in its result and never aborts the rest. There is no multi-entity
// transaction behind them.

func (t *GraphTools) CreateEntitiesBatch(_ context.Context, _ *mcp.CallToolRequest, input CreateEntitiesBatchInput) (*mcp.CallToolResult, any, error) {
	results := make([]models.BatchResult, 0, len(input.EntityNames))
	for _, name := range input.EntityNames {
		if _, err := t.Service.CreateEntity(name); err != nil {
			results = append(results, models.BatchResult{EntityName: name, Success: false, Message: err.Error()})
			continue
		}
		results = append(results, models.BatchResult{EntityName: name, Success: true, Message: fmt.Sprintf("Entity %q created.", name)})
	}
	return batchJSON(results)
}

func (t *GraphTools) AddObservationsBatch(_ context.Context, _ *mcp.CallToolRequest, input AddObservationsBatchInput) (*mcp.CallToolResult, any, error) {
	results := make([]models.BatchResult, 0, len(input.Observations))
	for _, item := range input.Observations {
		if _, err := t.Service.AddObservation(item.EntityName, item.Observation); err != nil {
			results = append(results, models.BatchResult{EntityName: item.EntityName, Success: false, Message: err.Error()})
			continue
		}
		results = append(results, models.BatchResult{EntityName: item.EntityName, Success: true, Message: fmt.Sprintf("Observation added to %q.", item.EntityName)})
	}
	return batchJSON(results)
}

func (t *GraphTools) AddRelationshipsBatch(_ context.Context, _ *mcp.CallToolRequest, input AddRelationshipsBatchInput) (*mcp.CallToolResult, any, error) {
	results := make([]models.BatchResult, 0, len(input.Relationships))
	for _, item := range input.Relationships {
		if _, err := t.Service.AddRelationship(item.SourceEntityName, item.VerbPreposition, item.TargetEntity, item.Context); err != nil {
			results = append(results, models.BatchResult{EntityName: item.SourceEntityName, Success: false, Message: err.Error()})
			continue
		}
		results = append(results, models.BatchResult{
			EntityName: item.SourceEntityName,
			Success:    true,
			Message:    fmt.Sprintf("Relationship added: %q %s %q.", item.SourceEntityName, item.VerbPreposition, item.TargetEntity),
		})
	}
	return batchJSON(results)
}

// --- Helpers ---

// errorLabel maps a service error onto its taxonomy name.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, graph.ErrNotFound):
		return "not_found"
	case errors.Is(err, graph.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, graph.ErrInvalidInput):
		return "invalid_input"
	default:
		return "io_failure"
	}
}

func serviceError(action string, err error) *mcp.CallToolResult {
	return toolError("Failed to %s [%s]: %v", action, errorLabel(err), err)
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func batchJSON(results []models.BatchResult) (*mcp.CallToolResult, any, error) {
	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	return toolJSON(map[string]any{
		"message": fmt.Sprintf("%d of %d items succeeded.", succeeded, len(results)),
		"results": results,
	})
}
