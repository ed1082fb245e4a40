package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"keyprint/internal/gallery"
	"keyprint/internal/identify"
	"keyprint/internal/keystroke"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Gallery *gallery.Manager
}

// NewMCPServer creates an MCP server exposing the typist gallery to
// assistants: identification, enrollment, and profile listing.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"keyprint",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("keyprint — keystroke-dynamics identification of enrolled typists."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("identify_typist",
			mcp.WithDescription("Score a key-event sample against every enrolled typist and return the banded best match."),
			mcp.WithString("events", mcp.Description("JSON array of key events: {key, code, timestamp, timeSinceLast, modifiers}"), mcp.Required()),
		),
		mcpIdentifyTypist(deps),
	)

	s.AddTool(
		mcp.NewTool("enroll_typist",
			mcp.WithDescription("Create or refresh a typist profile from a key-event sample."),
			mcp.WithString("name", mcp.Description("Typist name"), mcp.Required()),
			mcp.WithString("events", mcp.Description("JSON array of key events"), mcp.Required()),
		),
		mcpEnrollTypist(deps),
	)

	s.AddTool(
		mcp.NewTool("list_typists",
			mcp.WithDescription("List enrolled typists with their rolling match statistics."),
		),
		mcpListTypists(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"gallery://profiles",
			"Enrolled Typists",
			mcp.WithResourceDescription("All enrolled typist profiles as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfiles(deps),
	)

	return s
}

func parseEventsArg(req mcp.CallToolRequest) ([]keystroke.KeyEvent, *mcp.CallToolResult) {
	eventsJSON, err := req.RequireString("events")
	if err != nil {
		return nil, mcpError("events is required")
	}
	var events []keystroke.KeyEvent
	if err := json.Unmarshal([]byte(eventsJSON), &events); err != nil {
		return nil, mcpError(fmt.Sprintf("invalid events JSON: %v", err))
	}
	return events, nil
}

func mcpIdentifyTypist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		events, errResult := parseEventsArg(req)
		if errResult != nil {
			return errResult, nil
		}

		decision, err := deps.Gallery.Identify(ctx, events)
		switch err {
		case nil:
		case identify.ErrInsufficientSample:
			return mcpError(fmt.Sprintf("sample too small: need at least %d events, got %d", deps.Gallery.MinEvents(), len(events))), nil
		case identify.ErrEmptyGallery:
			return mcpText(`{"match":null,"band":"none"}`), nil
		default:
			return mcpError(fmt.Sprintf("identification failed: %v", err)), nil
		}

		resp := PredictResponse{
			Confidence: decision.Confidence,
			Band:       decision.Band,
			EventCount: decision.EventCount,
		}
		if decision.Matched() {
			resp.Match = &MatchResult{ProfileID: decision.ProfileID, Name: decision.ProfileName}
		}

		b, err := json.Marshal(resp)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEnrollTypist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return mcpError("name is required"), nil
		}
		events, errResult := parseEventsArg(req)
		if errResult != nil {
			return errResult, nil
		}

		p, err := deps.Gallery.Enroll(name, events)
		if err == identify.ErrInsufficientSample {
			return mcpError(fmt.Sprintf("sample too small: need at least %d events, got %d", deps.Gallery.MinEvents(), len(events))), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("enrollment failed: %v", err)), nil
		}

		return mcpText(fmt.Sprintf("Enrolled %s as profile %s", p.Name, p.ID)), nil
	}
}

func mcpListTypists(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profiles, err := deps.Gallery.List()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list typists: %v", err)), nil
		}
		if len(profiles) == 0 {
			return mcpText("[]"), nil
		}

		type typistSummary struct {
			ID              string  `json:"id"`
			Name            string  `json:"name"`
			AttemptCount    int     `json:"attempt_count"`
			MatchCount      int     `json:"match_count"`
			RollingAccuracy float64 `json:"rolling_accuracy"`
		}

		summaries := make([]typistSummary, len(profiles))
		for i, p := range profiles {
			summaries[i] = typistSummary{
				ID:              p.ID,
				Name:            p.Name,
				AttemptCount:    p.AttemptCount,
				MatchCount:      p.MatchCount,
				RollingAccuracy: p.RollingAccuracy,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal typists: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		profiles, err := deps.Gallery.List()
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}

		b, err := json.Marshal(profiles)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profiles: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
