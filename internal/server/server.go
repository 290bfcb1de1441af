package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/notegraph/notegraph-mcp/internal/graph"
	"github.com/notegraph/notegraph-mcp/internal/tools"
)

// New creates a fully configured MCP server with all tools registered.
func New(svc *graph.Service) *mcp.Server {
	gt := &tools.GraphTools{Service: svc}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "notegraph-mcp",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entity",
		Description: "Create a new entity in the knowledge graph; fails if it already exists",
	}, gt.CreateEntity)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_graph",
		Description: "Read the entire knowledge graph with all entities, observations, and relationships",
	}, gt.GetGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observation",
		Description: "Add a single textual fact to an existing entity (idempotent for identical text)",
	}, gt.AddObservation)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_relationship",
		Description: "Add a directed, verbed link from one entity to a target name; the target need not exist",
	}, gt.AddRelationship)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_entity",
		Description: "Delete an entity file; links from other entities become dangling references",
	}, gt.DeleteEntity)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_observation",
		Description: "Delete an observation from an entity; the text must match exactly",
	}, gt.DeleteObservation)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_relationship",
		Description: "Delete a relationship; verb, target, and context must all match exactly",
	}, gt.DeleteRelationship)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_entities_batch",
		Description: "Create multiple entities in one call, with a per-entity result",
	}, gt.CreateEntitiesBatch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_observations_batch",
		Description: "Add multiple observations across entities in one call, with a per-item result",
	}, gt.AddObservationsBatch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "add_relationships_batch",
		Description: "Add multiple relationships in one call, with a per-item result",
	}, gt.AddRelationshipsBatch)

	return srv
}
