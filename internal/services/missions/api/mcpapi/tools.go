// Package mcpapi exposes the mission lifecycle as MCP tools.
package mcpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/chaosarchitect/missions/internal/platform/errors"
	"github.com/chaosarchitect/missions/internal/platform/errors/i18n"
	"github.com/chaosarchitect/missions/internal/services/missions/lifecycle"
	"github.com/chaosarchitect/missions/internal/services/missions/mission"
)

const serverName = "chaos-architect-missions"

// Lifecycle is the mission lifecycle the tools drive.
type Lifecycle interface {
	RequestMission(ctx context.Context, email string) (lifecycle.Issued, error)
	RejectMission(ctx context.Context, email string) error
	GetStanding(ctx context.Context, email string) (mission.Standing, mission.Record, error)
}

// EmailInput identifies the student a tool acts for.
type EmailInput struct {
	Email string `json:"email" jsonschema:"registered student email address"`
}

// MissionResult is the request_mission tool output.
type MissionResult struct {
	Email      string `json:"email" jsonschema:"normalized student email"`
	Title      string `json:"title" jsonschema:"mission title"`
	Lore       string `json:"lore" jsonschema:"short scenario description"`
	Antagonist string `json:"antagonist" jsonschema:"what is causing the problem"`
	Task       string `json:"task" jsonschema:"app to build with core and optional features"`
	TechStack  string `json:"tech_stack" jsonschema:"suggested web technologies"`
	IsNew      bool   `json:"is_new" jsonschema:"whether this call issued the mission"`
}

// RejectResult is the reject_mission tool output.
type RejectResult struct {
	Email    string `json:"email" jsonschema:"normalized student email"`
	Standing string `json:"standing" jsonschema:"lifecycle standing after the call"`
}

// StatusResult is the mission_status tool output.
type StatusResult struct {
	Email    string `json:"email" jsonschema:"normalized student email"`
	Standing string `json:"standing" jsonschema:"none, active, or rejected"`
}

// RequestMissionTool defines the request_mission tool.
func RequestMissionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "request_mission",
		Description: "Returns the student's mission, issuing one on first request",
	}
}

// RejectMissionTool defines the reject_mission tool.
func RejectMissionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "reject_mission",
		Description: "Rejects the student's active mission; the student is banned from future missions",
	}
}

// MissionStatusTool defines the mission_status tool.
func MissionStatusTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "mission_status",
		Description: "Reports whether the student has no mission, an active one, or a rejected one",
	}
}

// RequestMissionHandler issues or returns a mission.
func RequestMissionHandler(lc Lifecycle) mcp.ToolHandlerFor[EmailInput, MissionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EmailInput) (*mcp.CallToolResult, MissionResult, error) {
		issued, err := lc.RequestMission(ctx, input.Email)
		if err != nil {
			return nil, MissionResult{}, toolError(err)
		}
		record := issued.Record
		return nil, MissionResult{
			Email:      record.Email,
			Title:      record.Title,
			Lore:       record.Lore,
			Antagonist: record.Antagonist,
			Task:       record.Task,
			TechStack:  record.TechStack,
			IsNew:      issued.IsNew,
		}, nil
	}
}

// RejectMissionHandler rejects an active mission.
func RejectMissionHandler(lc Lifecycle) mcp.ToolHandlerFor[EmailInput, RejectResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EmailInput) (*mcp.CallToolResult, RejectResult, error) {
		if err := lc.RejectMission(ctx, input.Email); err != nil {
			return nil, RejectResult{}, toolError(err)
		}
		email, _ := mission.NormalizeEmail(input.Email)
		return nil, RejectResult{Email: email, Standing: mission.StandingRejected.String()}, nil
	}
}

// MissionStatusHandler reports an identity's standing.
func MissionStatusHandler(lc Lifecycle) mcp.ToolHandlerFor[EmailInput, StatusResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EmailInput) (*mcp.CallToolResult, StatusResult, error) {
		standing, _, err := lc.GetStanding(ctx, input.Email)
		if err != nil {
			return nil, StatusResult{}, toolError(err)
		}
		email, _ := mission.NormalizeEmail(input.Email)
		return nil, StatusResult{Email: email, Standing: standing.String()}, nil
	}
}

// NewServer builds an MCP server with the lifecycle tools registered.
func NewServer(lc Lifecycle, version string) *mcp.Server {
	if version == "" {
		version = "dev"
	}
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	mcp.AddTool(server, RequestMissionTool(), RequestMissionHandler(lc))
	mcp.AddTool(server, RejectMissionTool(), RejectMissionHandler(lc))
	mcp.AddTool(server, MissionStatusTool(), MissionStatusHandler(lc))
	return server
}

// HTTPHandler serves server over the streamable HTTP transport.
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

// toolError renders a lifecycle error as tool error text: the wire name and
// the en-US message. Infrastructure causes stay in the server log.
func toolError(err error) error {
	code := apperrors.CodeOf(err)
	var metadata map[string]string
	if domainErr, ok := apperrors.As(err); ok {
		metadata = domainErr.Metadata
	}
	message := i18n.GetCatalog(i18n.BaseLocale).Format(string(code), metadata)
	return fmt.Errorf("%s: %s", code.WireName(), message)
}
