package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/models"
	"gopkg.in/yaml.v3"
)

// File is the YAML catalog layout
type File struct {
	Classes []ClassSpec `yaml:"classes"`
	Games   []GameSpec  `yaml:"games"`
}

// ClassSpec is one class in a catalog file
type ClassSpec struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	OwnerID string `yaml:"owner_id"`
}

// GameSpec is one game in a catalog file
type GameSpec struct {
	ID         string         `yaml:"id"`
	Title      string         `yaml:"title"`
	OwnerID    string         `yaml:"owner_id"`
	Activities []ActivitySpec `yaml:"activities"`
}

// ActivitySpec is one activity in a catalog file
type ActivitySpec struct {
	ID           string        `yaml:"id"`
	Type         string        `yaml:"type"`
	Title        string        `yaml:"title"`
	Instructions string        `yaml:"instructions"`
	DurationSec  int           `yaml:"duration_sec"`
	TeamSize     int           `yaml:"team_size"`
	GuessPoints  int           `yaml:"guess_points"`
	Content      []ContentSpec `yaml:"content"`
}

// ContentSpec is one content item in a catalog file. Data and AnswerKey are
// free-form and stored as JSON.
type ContentSpec struct {
	ID          string `yaml:"id"`
	DurationSec int    `yaml:"duration_sec"`
	Data        any    `yaml:"data"`
	AnswerKey   any    `yaml:"answer_key"`
}

// LoadFile reads a YAML catalog from disk
func LoadFile(path string) (*Memory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads a YAML catalog
func Load(r io.Reader) (*Memory, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return file.Build()
}

// Build validates the file and converts it to an in-memory catalog. Missing IDs
// are derived from the parent ID and position, so reloading a file yields the same IDs.
func (f *File) Build() (*Memory, error) {
	mem := NewMemory()
	for i, cs := range f.Classes {
		id, err := parseOrDerive(cs.ID, uuid.NameSpaceOID, fmt.Sprintf("class/%d/%s", i, cs.Name))
		if err != nil {
			return nil, fmt.Errorf("class %d: %w", i, err)
		}
		mem.AddClass(&models.Class{ID: id, Name: cs.Name, OwnerID: cs.OwnerID})
	}
	for i, gs := range f.Games {
		g, err := gs.build(i)
		if err != nil {
			return nil, fmt.Errorf("game %d (%s): %w", i, gs.Title, err)
		}
		mem.AddGame(g)
	}
	return mem, nil
}

func (gs GameSpec) build(pos int) (*models.Game, error) {
	gameID, err := parseOrDerive(gs.ID, uuid.NameSpaceOID, fmt.Sprintf("game/%d/%s", pos, gs.Title))
	if err != nil {
		return nil, err
	}
	g := &models.Game{ID: gameID, Title: gs.Title, OwnerID: gs.OwnerID}
	for i, as := range gs.Activities {
		t := models.ActivityType(as.Type)
		if !t.Valid() {
			return nil, fmt.Errorf("activity %d has unknown type %q", i, as.Type)
		}
		actID, err := parseOrDerive(as.ID, gameID, fmt.Sprintf("activity/%d", i))
		if err != nil {
			return nil, fmt.Errorf("activity %d: %w", i, err)
		}
		act := models.Activity{
			ID:           actID,
			Type:         t,
			Title:        as.Title,
			Instructions: as.Instructions,
			DurationSec:  as.DurationSec,
			TeamSize:     as.TeamSize,
			GuessPoints:  as.GuessPoints,
		}
		for j, cs := range as.Content {
			item, err := cs.build(actID, j)
			if err != nil {
				return nil, fmt.Errorf("activity %d content %d: %w", i, j, err)
			}
			act.Content = append(act.Content, item)
		}
		g.Activities = append(g.Activities, act)
	}
	return g, nil
}

func (cs ContentSpec) build(activityID uuid.UUID, pos int) (models.ContentItem, error) {
	id, err := parseOrDerive(cs.ID, activityID, fmt.Sprintf("content/%d", pos))
	if err != nil {
		return models.ContentItem{}, err
	}
	item := models.ContentItem{ID: id, DurationSec: cs.DurationSec}
	if cs.Data != nil {
		if item.Data, err = json.Marshal(cs.Data); err != nil {
			return models.ContentItem{}, fmt.Errorf("encode data: %w", err)
		}
	}
	if cs.AnswerKey != nil {
		if item.AnswerKey, err = json.Marshal(cs.AnswerKey); err != nil {
			return models.ContentItem{}, fmt.Errorf("encode answer key: %w", err)
		}
	}
	return item, nil
}

func parseOrDerive(raw string, space uuid.UUID, name string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.NewSHA1(space, []byte(name)), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q: %w", raw, err)
	}
	return id, nil
}
