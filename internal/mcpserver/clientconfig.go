package mcpserver

import "strconv"

// ServerName is the key under which clients register this server.
const ServerName = "mdgraph"

// ClientConfig is the "mcpServers" block MCP clients read to launch the
// server.
type ClientConfig struct {
	MCPServers map[string]ClientEntry `json:"mcpServers"`
}

// ClientEntry describes how to start one server.
type ClientEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
}

// NewClientConfig returns a config that runs `command serve` against the
// given notes root and graph address.
func NewClientConfig(command, notesRoot, host string, port int) ClientConfig {
	return ClientConfig{
		MCPServers: map[string]ClientEntry{
			ServerName: {
				Command: command,
				Args:    []string{"serve"},
				Env: map[string]string{
					"MEMGRAPH_HOST": host,
					"MEMGRAPH_PORT": strconv.Itoa(port),
					"NOTES_ROOT":    notesRoot,
				},
			},
		},
	}
}
