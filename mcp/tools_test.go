package mcp

import (
	"strings"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestNormalizeContent(t *testing.T) {
	content := []sdkmcp.Content{
		&sdkmcp.TextContent{Text: "hello"},
		&sdkmcp.ResourceLink{URI: "file://foo", Name: "foo.txt"},
	}

	got := normalizeContent(content)
	lines := strings.Split(got, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), got)
	}
	if lines[0] != "hello" {
		t.Fatalf("expected first line to be 'hello', got %q", lines[0])
	}
	if !strings.Contains(lines[1], "\"resource_link\"") {
		t.Fatalf("expected JSON output to include resource link type: %q", lines[1])
	}
}

func TestNormalizeContentEmpty(t *testing.T) {
	if got := normalizeContent(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestToolError(t *testing.T) {
	err := &ToolError{Name: "route_planner", Message: "no such station"}
	if !strings.Contains(err.Error(), "route_planner") {
		t.Fatalf("error should name the tool: %v", err)
	}
}
