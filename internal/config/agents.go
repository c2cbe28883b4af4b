package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentProfile describes one remote agent a user can converse with.
type AgentProfile struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Endpoint    string `yaml:"endpoint"`
	Description string `yaml:"description,omitempty"`
}

// AgentRegistry resolves agent ids to their profiles.
type AgentRegistry struct {
	agents map[string]AgentProfile
}

type agentsFile struct {
	Agents []AgentProfile `yaml:"agents"`
}

// NewAgentRegistry builds a registry from profiles, rejecting invalid or
// duplicate entries.
func NewAgentRegistry(profiles []AgentProfile) (*AgentRegistry, error) {
	reg := &AgentRegistry{agents: make(map[string]AgentProfile)}
	for _, a := range profiles {
		if a.ID == "" {
			return nil, fmt.Errorf("agent with empty id")
		}
		if a.Endpoint == "" || !strings.HasPrefix(a.Endpoint, "http") {
			return nil, fmt.Errorf("agent %q needs an http(s) endpoint", a.ID)
		}
		if _, dup := reg.agents[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		reg.agents[a.ID] = a
	}
	return reg, nil
}

// LoadAgents reads the YAML agent registry. A missing file yields an empty
// registry rather than an error so a fresh install can start and be
// configured afterwards.
func LoadAgents(path string) (*AgentRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AgentRegistry{agents: make(map[string]AgentProfile)}, nil
		}
		return nil, fmt.Errorf("read agents file %s: %w", path, err)
	}

	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}

	reg, err := NewAgentRegistry(file.Agents)
	if err != nil {
		return nil, fmt.Errorf("agents file %s: %w", path, err)
	}
	return reg, nil
}

// Resolve returns the profile for an agent id.
func (r *AgentRegistry) Resolve(id string) (AgentProfile, error) {
	a, ok := r.agents[id]
	if !ok {
		return AgentProfile{}, fmt.Errorf("unknown agent %q", id)
	}
	return a, nil
}

// Endpoint returns the exchange endpoint for an agent id.
func (r *AgentRegistry) Endpoint(id string) (string, error) {
	a, err := r.Resolve(id)
	if err != nil {
		return "", err
	}
	return a.Endpoint, nil
}

// List returns all profiles sorted by id.
func (r *AgentRegistry) List() []AgentProfile {
	out := make([]AgentProfile, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SaveAgents writes the registry back to disk, sorted by id.
func SaveAgents(path string, reg *AgentRegistry) error {
	data, err := yaml.Marshal(agentsFile{Agents: reg.List()})
	if err != nil {
		return fmt.Errorf("marshal agents: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
