package store

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/voyaged/internal/registry"
)

// Profile is one configured traveler: the registry participant plus the
// memories seeded into their collection at startup.
type Profile struct {
	registry.Participant `koanf:",squash"`

	// Memories are free-text facts seeded into the participant's memory
	// collection before the first session.
	Memories []string `koanf:"memories"`
}

// profilesFile is the YAML shape of a profiles file.
type profilesFile struct {
	Participants []Profile `koanf:"participants"`
}

// LoadProfiles reads participant profiles from a YAML file.
func LoadProfiles(path string) ([]Profile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing profiles file %s: %w", path, err)
	}

	var file profilesFile
	if err := k.Unmarshal("", &file); err != nil {
		return nil, fmt.Errorf("unmarshaling profiles file %s: %w", path, err)
	}

	if len(file.Participants) == 0 {
		return nil, fmt.Errorf("profiles file %s defines no participants", path)
	}
	for i, p := range file.Participants {
		if p.ID == "" {
			return nil, fmt.Errorf("profiles file %s: participant %d missing id", path, i)
		}
	}
	return file.Participants, nil
}

// Participants strips the memories, returning just the registry shape.
func Participants(profiles []Profile) []registry.Participant {
	out := make([]registry.Participant, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, p.Participant)
	}
	return out
}
