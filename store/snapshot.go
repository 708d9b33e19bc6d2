package store

import (
	"encoding/json"
	"fmt"

	"remixai/model"
)

// snapshotVersion is written into every snapshot. Decoders accept older
// versions; fields added later must be optional so an old snapshot stays
// readable with defaults.
const snapshotVersion = 1

// snapshot is the durable wire format of a project graph.
type snapshot struct {
	Version int            `json:"version"`
	Project *model.Project `json:"project"`
}

// Encode serializes the project to the human-inspectable snapshot format.
func Encode(p *model.Project) ([]byte, error) {
	data, err := json.MarshalIndent(snapshot{Version: snapshotVersion, Project: p}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode reconstructs a project from snapshot bytes. Songs keep their
// insertion order and each song its track order.
func Decode(data []byte) (*model.Project, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	if snap.Version > snapshotVersion {
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, snapshotVersion)
	}
	if snap.Project == nil {
		return nil, fmt.Errorf("snapshot has no project")
	}
	p := snap.Project
	if p.Songs == nil {
		p.Songs = []*model.Song{}
	}
	for _, song := range p.Songs {
		if song.Tracks == nil {
			song.Tracks = []model.Track{}
		}
		if song.Meta == nil {
			song.Meta = map[string]string{}
		}
	}
	return p, nil
}
