package a2a

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	wire "github.com/park285/chessbench-go/pkg/a2a"
)

// LoadCard reads a YAML agent card from path, or returns def when path is
// empty. A non-empty url overrides the card's url.
func LoadCard(path string, def wire.AgentCard, url string) (wire.AgentCard, error) {
	card := def
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return wire.AgentCard{}, fmt.Errorf("read agent card: %w", err)
		}
		card = wire.AgentCard{}
		if err := yaml.Unmarshal(raw, &card); err != nil {
			return wire.AgentCard{}, fmt.Errorf("parse agent card %s: %w", path, err)
		}
	}
	if url != "" {
		card.URL = url
	}
	if card.Name == "" {
		return wire.AgentCard{}, fmt.Errorf("agent card has no name")
	}
	if len(card.DefaultInputModes) == 0 {
		card.DefaultInputModes = []string{"text"}
	}
	if len(card.DefaultOutputModes) == 0 {
		card.DefaultOutputModes = []string{"text"}
	}
	return card, nil
}
