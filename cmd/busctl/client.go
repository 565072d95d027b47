package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultServerURL = "http://localhost:8765/mcp"

// callTool connects to the bus server, invokes a single tool, and returns
// its structured result.
func callTool(ctx context.Context, name string, args map[string]any) (any, error) {
	serverURL := os.Getenv("AGENTBUS_URL")
	if serverURL == "" {
		serverURL = defaultServerURL
	}

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "busctl",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: serverURL}, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", serverURL, err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", name, err)
	}
	if res.IsError {
		return nil, fmt.Errorf("%s failed: %s", name, textContent(res))
	}
	return res.StructuredContent, nil
}

// printResult renders a tool result as indented JSON on stdout.
func printResult(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func textContent(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if t, ok := c.(*mcp.TextContent); ok {
			return t.Text
		}
	}
	return "unknown error"
}
