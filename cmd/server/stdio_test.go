package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// serverBinPath is the binary built by TestMain; empty in short mode.
var serverBinPath string

func TestMain(m *testing.M) {
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	flag.Parse()
	if testing.Short() {
		return m.Run()
	}

	dir, err := os.MkdirTemp("", "listingkeeper-bin-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating build dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(dir)

	serverBinPath = filepath.Join(dir, "listingkeeper")
	build := exec.Command("go", "build", "-o", serverBinPath, ".")
	build.Stdout = os.Stderr
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building server binary: %v\n", err)
		return 1
	}
	return m.Run()
}

func serverBinary(t *testing.T) string {
	t.Helper()
	if serverBinPath == "" {
		t.Skip("stdio tests need the server binary, which is not built in short mode")
	}
	return serverBinPath
}

func serverEnv(t *testing.T) []string {
	return append(os.Environ(),
		"LISTINGS_TRANSPORT=stdio",
		"LISTINGS_STORAGE_BACKEND=sqlite",
		"LISTINGS_DB_PATH="+filepath.Join(t.TempDir(), "listings.db"),
		"LISTINGS_ENV_FILE="+filepath.Join(t.TempDir(), "none.env"),
	)
}

// TestStdioProtocolCompliance drives the built binary over stdio with the SDK client.
func TestStdioProtocolCompliance(t *testing.T) {
	binaryPath := serverBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = serverEnv(t)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: cmd}, nil)
	require.NoError(t, err, "Failed to connect to server")
	defer session.Close()

	t.Run("ServerInfo", func(t *testing.T) {
		initResult := session.InitializeResult()
		require.NotNil(t, initResult)
		require.Equal(t, "listingkeeper", initResult.ServerInfo.Name)
	})

	t.Run("ListTools", func(t *testing.T) {
		tools, err := session.ListTools(ctx, nil)
		require.NoError(t, err)
		names := make(map[string]bool)
		for _, tool := range tools.Tools {
			names[tool.Name] = true
		}
		for _, name := range []string{"list_listings", "create_listing", "bulk_repost", "sweep_expired"} {
			require.True(t, names[name], "Missing expected tool: %s", name)
		}
	})

	t.Run("CallListListings", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "list_listings"})
		require.NoError(t, err)
		require.False(t, result.IsError, "list_listings returned error: %v", result)
		text, ok := result.Content[0].(*sdkmcp.TextContent)
		require.True(t, ok)
		require.Contains(t, text.Text, `"listings":[]`)
	})
}

// TestStdioProtocol_StdoutHygiene checks that stdout carries nothing but JSON-RPC messages.
func TestStdioProtocol_StdoutHygiene(t *testing.T) {
	binaryPath := serverBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binaryPath)
	cmd.Env = append(serverEnv(t), "LISTINGS_LOG_LEVEL=debug")

	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	_, err = stdin.Write([]byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"t","version":"1"}}}` + "\n"))
	require.NoError(t, err)

	scanner := bufio.NewScanner(stdout)
	require.True(t, scanner.Scan(), "expected an initialize response")

	var msg map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &msg), "stdout line is not JSON: %s", scanner.Text())
	require.Equal(t, "2.0", msg["jsonrpc"])
	require.NotNil(t, msg["result"])
}
