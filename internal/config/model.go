package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ItemType distinguishes items that produce a distributable artifact from
// plain applications.
type ItemType string

const (
	// TypePackage items produce a tarball artifact consumable by dependents.
	TypePackage ItemType = "package"
	// TypeApp items run their commands but produce no artifact.
	TypeApp ItemType = "app"
)

// Item is one entry of a build chain configuration.
type Item struct {
	Name      string   `json:"name"`
	Type      ItemType `json:"type"`
	Dir       string   `json:"dir"`
	Commands  []Stage  `json:"commands"`
	DependsOn string   `json:"depends_on,omitempty"`
	AutoPack  *bool    `json:"auto_pack,omitempty"`
}

// ShouldAutoPack reports whether a packaging step runs automatically after
// the item's commands. Package items default to true when the field is
// omitted; app items never auto-pack.
func (it *Item) ShouldAutoPack() bool {
	if it.Type != TypePackage {
		return false
	}
	if it.AutoPack == nil {
		return true
	}
	return *it.AutoPack
}

// Stage is one entry of an item's command list: either a single command
// executed serially, or a group of commands executed concurrently with
// fail-fast semantics.
type Stage struct {
	Commands []string
	Parallel bool
}

// UnmarshalJSON accepts either a JSON string (serial stage) or a JSON array
// of strings (parallel group).
func (s *Stage) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return fmt.Errorf("command must be a non-empty string")
		}
		*s = Stage{Commands: []string{single}}
		return nil
	}

	var group []string
	if err := json.Unmarshal(data, &group); err != nil {
		return fmt.Errorf("command stage must be a string or a list of strings")
	}
	if len(group) == 0 {
		return fmt.Errorf("parallel command group must not be empty")
	}
	for i, cmd := range group {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("parallel command group entry %d must be a non-empty string", i)
		}
	}
	*s = Stage{Commands: group, Parallel: true}
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON.
func (s Stage) MarshalJSON() ([]byte, error) {
	if s.Parallel {
		return json.Marshal(s.Commands)
	}
	if len(s.Commands) != 1 {
		return nil, fmt.Errorf("serial stage must hold exactly one command, got %d", len(s.Commands))
	}
	return json.Marshal(s.Commands[0])
}
