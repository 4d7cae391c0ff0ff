package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/w3ctl/internal/model"
)

// NodeEntry is one line of the node catalog document pointed to by
// Controller.NodeRegistryPath (spec §6's NODE_REGISTRY_URL, fixed by this
// expansion as a YAML document rather than an unspecified remote source).
type NodeEntry struct {
	ID       int32  `yaml:"id"`
	Name     string `yaml:"name"`
	Addr     string `yaml:"addr"`
	Country  string `yaml:"country"`
	Capacity int32  `yaml:"capacity"`
}

// NodeCatalog is the root document: a flat list of entries.
type NodeCatalog struct {
	Nodes []NodeEntry `yaml:"nodes"`
}

// LoadNodeCatalog reads path and returns it as a map keyed by node id, ready
// for lobby.NewRegistry.
func LoadNodeCatalog(path string) (map[model.NodeID]model.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading node catalog %s: %w", path, err)
	}

	var doc NodeCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing node catalog %s: %w", path, err)
	}

	out := make(map[model.NodeID]model.Node, len(doc.Nodes))
	for _, e := range doc.Nodes {
		out[model.NodeID(e.ID)] = model.Node{
			ID:       model.NodeID(e.ID),
			Name:     e.Name,
			Addr:     e.Addr,
			Country:  e.Country,
			Capacity: e.Capacity,
		}
	}
	return out, nil
}
