// Package config defines the configuration shape for the collaboration
// core. Parsing config files or flags into these structs is an external
// concern; this package only defines the types and sane defaults.
package config

import "time"

// ServerConfig controls the collaboration daemon's own network identity.
type ServerConfig struct {
	ListenAddrs []string
	NodeName    string
}

// NetworkConfig controls overlay behavior: discovery mechanisms and
// per-event buffering.
type NetworkConfig struct {
	EnableMDNS     bool
	EnableKadDHT   bool
	BootstrapPeers []string
	EventBuffer    int
	PeerTimeout    time.Duration
}

// GitConfig controls how documents are persisted to git.
type GitConfig struct {
	BaseDir       string
	AuthorName    string
	AuthorEmail   string
	DefaultBranch string
	RemoteUsername string
	RemoteToken   string
	SyncInterval  time.Duration
}

// StorageConfig controls document size and autosave limits.
type StorageConfig struct {
	MaxDocumentSizeMB    int
	AutosaveIntervalSecs int
}

// Config is the full configuration for one collaboration node.
type Config struct {
	Server  ServerConfig
	Network NetworkConfig
	Git     GitConfig
	Storage StorageConfig
}

// DefaultConfig returns the baseline configuration, matching the original
// implementation's defaults.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
			NodeName:    "collab-node",
		},
		Network: NetworkConfig{
			EnableMDNS:   true,
			EnableKadDHT: true,
			EventBuffer:  256,
			PeerTimeout:  5 * time.Minute,
		},
		Git: GitConfig{
			BaseDir:       "./documents",
			AuthorName:    "P2P LaTeX Collaborator",
			AuthorEmail:   "collab@example.com",
			DefaultBranch: "main",
			SyncInterval:  300 * time.Second,
		},
		Storage: StorageConfig{
			MaxDocumentSizeMB:    50,
			AutosaveIntervalSecs: 60,
		},
	}
}
