package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
)

const sample = `
classes:
  - id: 6f1c1c5e-5d3b-4a57-9a2e-3c7f0b1f2a11
    name: Period 3
    owner_id: teacher-1
games:
  - id: 0b8f5a5e-1c0a-4d6e-9f59-7d1f8f7f2b22
    title: Animals
    owner_id: teacher-1
    activities:
      - type: MULTIPLE_CHOICE
        title: Warm up
        content:
          - duration_sec: 30
            data:
              question: Which animal barks?
              options: [cat, dog, cow]
            answer_key:
              correct_index: 1
      - type: TEAM_CHALLENGE
        title: Draw it
        team_size: 3
        content:
          - data:
              category: animals
              hints: [pet, meows]
            answer_key:
              answer: cat
              alternates: [kitty]
`

func TestLoadBuildsGames(t *testing.T) {
	mem, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()

	class, err := mem.GetClass(ctx, uuid.MustParse("6f1c1c5e-5d3b-4a57-9a2e-3c7f0b1f2a11"))
	if err != nil {
		t.Fatal(err)
	}
	if class.OwnerID != "teacher-1" {
		t.Fatalf("class owner = %s", class.OwnerID)
	}

	game, err := mem.GetGame(ctx, uuid.MustParse("0b8f5a5e-1c0a-4d6e-9f59-7d1f8f7f2b22"))
	if err != nil {
		t.Fatal(err)
	}
	if len(game.Activities) != 2 {
		t.Fatalf("activities = %d", len(game.Activities))
	}
	mc := game.Activities[0]
	if mc.Type != models.ActivityTypeMultipleChoice || mc.Content[0].DurationSec != 30 {
		t.Fatalf("first activity = %+v", mc)
	}
	if got := string(mc.Content[0].AnswerKey); got != `{"correct_index":1}` {
		t.Fatalf("answer key = %s", got)
	}
	team := game.Activities[1]
	if team.TeamSize != 3 || string(team.Content[0].AnswerKey) != `{"alternates":["kitty"],"answer":"cat"}` {
		t.Fatalf("team activity = %+v", team)
	}

	// derived ids are stable across loads
	again, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	game2, err := again.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatal(err)
	}
	if game2.Activities[1].Content[0].ID != team.Content[0].ID {
		t.Fatal("derived content ids changed between loads")
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown type", "games:\n  - title: x\n    activities:\n      - type: ESSAY\n"},
		{"bad id", "games:\n  - id: nope\n    title: x\n"},
		{"not yaml", "games: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(strings.NewReader(tt.yaml)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMemoryNotFound(t *testing.T) {
	mem := NewMemory()
	if _, err := mem.GetGame(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetGame err = %v", err)
	}
	if _, err := mem.GetClass(context.Background(), uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("GetClass err = %v", err)
	}
}

func TestRowRoundTrip(t *testing.T) {
	mem, err := Load(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	game := mem.Games()[0]
	row := rowFromGame(game)
	if row.Activities[1].Position != 1 || row.Activities[1].Content[0].ActivityID != game.Activities[1].ID {
		t.Fatalf("row positions not set: %+v", row.Activities[1])
	}
	if diff := cmp.Diff(game, gameFromRow(row)); diff != "" {
		t.Fatalf("row conversion changed the game (-want +got):\n%s", diff)
	}
}

func TestBundledCatalog(t *testing.T) {
	mem, err := LoadFile("../assets/catalog.yaml")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	games := mem.Games()
	if len(games) != 1 {
		t.Fatalf("games = %d", len(games))
	}
	seen := map[models.ActivityType]bool{}
	for _, act := range games[0].Activities {
		seen[act.Type] = true
		if len(act.Content) == 0 {
			t.Errorf("activity %q has no content", act.Title)
		}
	}
	for _, typ := range []models.ActivityType{
		models.ActivityTypeMultipleChoice, models.ActivityTypeTrueFalse, models.ActivityTypeOpenEnded,
		models.ActivityTypeFillInBlank, models.ActivityTypeSorting, models.ActivityTypeMatching,
		models.ActivityTypeMathProblem, models.ActivityTypeTeamChallenge,
	} {
		if !seen[typ] {
			t.Errorf("bundled catalog has no %s activity", typ)
		}
	}
}
