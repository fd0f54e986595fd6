package proxy

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/tollgate/internal/task"
)

// Synthetic tool names served by the gate itself, never forwarded.
const (
	ToolCheckTaskStatus   = "checkTaskStatus"
	ToolListHighRiskTools = "listHighRiskTools"
)

// Status markers callers branch on in structuredContent.
const (
	statusPendingPoll = "PENDING_APPROVAL_POLL"
	statusCompleted   = "COMPLETED"
	statusDenied      = "DENIED"
)

// syntheticTools returns the two gate-owned tool definitions appended to
// every catalog listing.
func syntheticTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolCheckTaskStatus,
			mcp.WithDescription("Check a pending approval task. Returns the tool result once the approval is granted, or the current pending state so the caller can poll again."),
			mcp.WithString("taskId",
				mcp.Required(),
				mcp.Description("Task id returned by a gated tool call."),
			),
		),
		mcp.NewTool(ToolListHighRiskTools,
			mcp.WithDescription("List the tools that require out-of-band approval before they execute."),
		),
	}
}

func blockedResult(toolName string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Access to %s has been blocked.", toolName))
}

// pendingResult tells the caller to poll checkTaskStatus with the task id.
// The text block mirrors the structured payload for clients that only read
// text content.
func pendingResult(taskID string) *mcp.CallToolResult {
	structured := map[string]any{
		"status":     statusPendingPoll,
		"nextAction": "call_tool",
		"toolToCall": ToolCheckTaskStatus,
		"taskId":     taskID,
		"toolArgs":   map[string]any{"taskId": taskID},
	}
	text, _ := json.Marshal(structured)
	return &mcp.CallToolResult{
		Content:           []mcp.Content{mcp.NewTextContent(string(text))},
		StructuredContent: structured,
	}
}

// completedResult returns the downstream result with the completion markers
// merged into its structured content. Text content passes through untouched.
func completedResult(res task.Resolution) *mcp.CallToolResult {
	var out mcp.CallToolResult
	if res.Result != nil {
		out = *res.Result
	}

	merged := make(map[string]any)
	switch sc := out.StructuredContent.(type) {
	case nil:
	case map[string]any:
		maps.Copy(merged, sc)
	default:
		merged["result"] = sc
	}
	merged["status"] = statusCompleted
	merged["tool"] = res.Tool
	out.StructuredContent = merged

	if len(out.Content) == 0 {
		out.Content = []mcp.Content{mcp.NewTextContent(fmt.Sprintf("Tool %s was approved and executed.", res.Tool))}
	}
	return &out
}

func deniedResult(res task.Resolution) *mcp.CallToolResult {
	out := mcp.NewToolResultError(fmt.Sprintf("Tool %s was not executed: %s", res.Tool, res.Detail))
	out.StructuredContent = map[string]any{
		"status": statusDenied,
		"tool":   res.Tool,
		"taskId": res.TaskID,
		"detail": res.Detail,
	}
	return out
}

func notFoundResult(taskID string) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("No approval task found for taskId %s.", taskID))
}

func executionFailedResult(res task.Resolution) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Tool %s was approved but the execution failed: %v", res.Tool, res.CallErr))
}

func highRiskListing(serverID string, names []string) *mcp.CallToolResult {
	if len(names) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No tools on server %q require approval.", serverID))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tools on server %q that require out-of-band approval before execution:\n", serverID)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n"))
}
