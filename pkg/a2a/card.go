package a2a

// WellKnownCardPath is where agents publish their card.
const WellKnownCardPath = "/.well-known/agent.json"

type Skill struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type Capabilities struct {
	Streaming bool `json:"streaming" yaml:"streaming"`
}

type AgentCard struct {
	Name               string       `json:"name" yaml:"name"`
	Description        string       `json:"description" yaml:"description"`
	URL                string       `json:"url" yaml:"url"`
	Version            string       `json:"version" yaml:"version"`
	DefaultInputModes  []string     `json:"defaultInputModes" yaml:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes" yaml:"defaultOutputModes"`
	Capabilities       Capabilities `json:"capabilities" yaml:"capabilities"`
	Skills             []Skill      `json:"skills" yaml:"skills"`
}
