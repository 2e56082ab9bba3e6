package teamchallenge

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
)

var t0 = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func prompt(answer string, hints ...string) models.ContentItem {
	data, _ := json.Marshal(PromptData{Category: "animals", Hints: hints})
	key, _ := json.Marshal(map[string]any{"answer": answer, "alternates": []string{answer + "s"}})
	return models.ContentItem{ID: uuid.New(), Data: data, AnswerKey: key, DurationSec: 60}
}

func challenge(prompts ...models.ContentItem) models.Activity {
	return models.Activity{
		ID:      uuid.New(),
		Type:    models.ActivityTypeTeamChallenge,
		Title:   "Draw it",
		Content: prompts,
	}
}

func TestHintRevealAt(t *testing.T) {
	tests := []struct {
		i, h int
		d    time.Duration
		want time.Duration
	}{
		{0, 2, 60 * time.Second, 20 * time.Second},
		{1, 2, 60 * time.Second, 40 * time.Second},
		{0, 1, 60 * time.Second, 30 * time.Second},
		{2, 3, 60 * time.Second, 45 * time.Second},
		{1, 2, 15 * time.Second, 5 * time.Second}, // floored at 10s remaining
		{0, 1, 5 * time.Second, 0},
	}
	for _, tt := range tests {
		if got := HintRevealAt(tt.i, tt.h, tt.d); got != tt.want {
			t.Errorf("HintRevealAt(%d, %d, %s) = %s, want %s", tt.i, tt.h, tt.d, got, tt.want)
		}
	}
}

func TestVisibleHints(t *testing.T) {
	hints := []string{"four legs", "meows"}
	d := 60 * time.Second
	if got := VisibleHints(hints, d, 19*time.Second); len(got) != 0 {
		t.Fatalf("at 19s got %v", got)
	}
	if diff := cmp.Diff([]string{"four legs"}, VisibleHints(hints, d, 20*time.Second)); diff != "" {
		t.Fatalf("at 20s (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(hints, VisibleHints(hints, d, 40*time.Second)); diff != "" {
		t.Fatalf("at 40s (-want +got):\n%s", diff)
	}
}

func TestFormTeamsIsIdempotent(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat"), prompt("dog"))

	first, created, err := c.FormTeams(act, []string{"p1", "p2", "p3", "p4"}, true, t0)
	if err != nil || !created {
		t.Fatalf("FormTeams = %v, %v", created, err)
	}
	if len(first) != 2 {
		t.Fatalf("got %d teams, want 2", len(first))
	}
	for _, team := range first {
		if len(team.MemberIDs) != 2 {
			t.Fatalf("team %s has %d members", team.Name, len(team.MemberIDs))
		}
		if team.DrawerID != team.MemberIDs[0] {
			t.Fatalf("team %s drawer %s is not its first member", team.Name, team.DrawerID)
		}
	}

	second, created, err := c.FormTeams(act, []string{"p4", "p3", "p2", "p1", "p5"}, true, t0.Add(time.Second))
	if err != nil || created {
		t.Fatalf("second FormTeams = %v, %v", created, err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second formation differs (-first +second):\n%s", diff)
	}
}

func TestFormTeamsJoinOrderAndOddCounts(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat"))
	teams, _, err := c.FormTeams(act, []string{"p1", "p2", "p3", "p4", "p5"}, false, t0)
	if err != nil {
		t.Fatalf("FormTeams: %v", err)
	}
	want := [][]string{{"p1", "p3", "p5"}, {"p2", "p4"}}
	for i, team := range teams {
		if diff := cmp.Diff(want[i], team.MemberIDs); diff != "" {
			t.Fatalf("team %d members (-want +got):\n%s", i, diff)
		}
	}
}

func TestFormTeamsErrors(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	notTeam := models.Activity{ID: uuid.New(), Type: models.ActivityTypeSorting}
	if _, _, err := c.FormTeams(notTeam, []string{"p1"}, false, t0); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("err = %v, want state", err)
	}
	if _, _, err := c.FormTeams(challenge(prompt("cat")), nil, false, t0); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("err = %v, want state", err)
	}
	if _, _, err := c.FormTeams(challenge(), []string{"p1"}, false, t0); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func formed(t *testing.T, c *Coordinator, act models.Activity, members ...string) []models.Team {
	t.Helper()
	teams, _, err := c.FormTeams(act, members, false, t0)
	if err != nil {
		t.Fatalf("FormTeams: %v", err)
	}
	return teams
}

func TestSwitchDrawer(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat"))
	team := formed(t, c, act, "p1", "p2", "p3", "p4")[0] // p1 draws, p3 guesses

	if _, err := c.SwitchDrawer(act.ID, team.ID, "p3", false, "p3"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("guesser switched drawer: %v", err)
	}
	prev, err := c.SwitchDrawer(act.ID, team.ID, "p1", false, "p3")
	if err != nil || prev != "p1" {
		t.Fatalf("drawer switch = %q, %v", prev, err)
	}
	if _, err := c.SwitchDrawer(act.ID, team.ID, "teacher", true, "p1"); err != nil {
		t.Fatalf("owner switch: %v", err)
	}
	if _, err := c.SwitchDrawer(act.ID, team.ID, "teacher", true, "p2"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("switch to non-member: %v", err)
	}
	if _, err := c.SwitchDrawer(act.ID, "nope", "teacher", true, "p1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("unknown team: %v", err)
	}

	got, _ := c.Team(act.ID, team.ID)
	if got.DrawerID != "p1" {
		t.Fatalf("DrawerID = %s, want p1", got.DrawerID)
	}
}

func TestStrokeSnapshotKeepsEmissionOrder(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat"))
	teams := formed(t, c, act, "p1", "p2", "p3", "p4")
	team1 := teams[0]

	for i := 0; i < 3; i++ {
		data := json.RawMessage(`{"points":[[` + string(rune('0'+i)) + `,0]]}`)
		if _, err := c.AppendStroke(act.ID, team1.ID, team1.DrawerID, data, t0); err != nil {
			t.Fatalf("AppendStroke: %v", err)
		}
	}
	if _, err := c.AppendStroke(act.ID, team1.ID, team1.MemberIDs[1], json.RawMessage(`{}`), t0); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("guesser drew: %v", err)
	}

	d, err := c.Drawing(act.ID, team1.ID)
	if err != nil {
		t.Fatalf("Drawing: %v", err)
	}
	if len(d.Strokes) != 3 {
		t.Fatalf("got %d strokes, want 3", len(d.Strokes))
	}
	for i, s := range d.Strokes {
		if s.Seq != int64(i+1) {
			t.Fatalf("stroke %d has seq %d", i, s.Seq)
		}
	}

	other, _ := c.Drawing(act.ID, teams[1].ID)
	if len(other.Strokes) != 0 {
		t.Fatalf("team2 canvas has %d strokes", len(other.Strokes))
	}

	if err := c.Clear(act.ID, team1.ID, team1.DrawerID); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	d, _ = c.Drawing(act.ID, team1.ID)
	if len(d.Strokes) != 0 {
		t.Fatalf("canvas not cleared: %d strokes", len(d.Strokes))
	}
}

func TestCorrectGuessAdvancesOnce(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat", "meows"), prompt("dog"))
	team := formed(t, c, act, "p1", "p2")[0] // p1 draws, p2 guesses

	if _, err := c.SubmitGuess(act.ID, team.ID, "p1", "cat", nil, t0); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("drawer guess: %v", err)
	}

	idx := 0
	out, err := c.SubmitGuess(act.ID, team.ID, "p2", "  CAT ", &idx, t0.Add(15*time.Second))
	if err != nil {
		t.Fatalf("SubmitGuess: %v", err)
	}
	if !out.Guess.Correct || !out.Advanced {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Remaining != 45*time.Second || out.DrawerID != "p1" {
		t.Fatalf("remaining %s drawer %s", out.Remaining, out.DrawerID)
	}
	if out.Team.PromptIndex != 1 || out.Team.DrawerID != "p2" {
		t.Fatalf("team after advance = %+v", out.Team)
	}

	// the same guess resent for the old prompt is stale
	if _, err := c.SubmitGuess(act.ID, team.ID, "p1", "cat", &idx, t0.Add(16*time.Second)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("resent guess: %v", err)
	}
	got, _ := c.Team(act.ID, team.ID)
	if got.PromptIndex != 1 {
		t.Fatalf("PromptIndex = %d after resend, want 1", got.PromptIndex)
	}
}

func TestWrongGuessesAreBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GuessHistory = 3
	c := NewCoordinator(cfg)
	act := challenge(prompt("cat"))
	team := formed(t, c, act, "p1", "p2")[0]

	for _, g := range []string{"dog", "cow", "pig", "hen", "fox"} {
		out, err := c.SubmitGuess(act.ID, team.ID, "p2", g, nil, t0)
		if err != nil {
			t.Fatalf("SubmitGuess(%q): %v", g, err)
		}
		if out.Advanced {
			t.Fatalf("wrong guess %q advanced", g)
		}
	}

	hist, _ := c.Guesses(act.ID, team.ID)
	var texts []string
	for _, g := range hist {
		texts = append(texts, g.Text)
	}
	if diff := cmp.Diff([]string{"pig", "hen", "fox"}, texts); diff != "" {
		t.Fatalf("history (-want +got):\n%s", diff)
	}
}

func TestAdvancePromptGuardsIndex(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat"), prompt("dog"))
	team := formed(t, c, act, "p1", "p2")[0]

	if _, ok, _ := c.AdvancePrompt(act.ID, team.ID, 0, t0); !ok {
		t.Fatal("first timeout should advance")
	}
	if _, ok, _ := c.AdvancePrompt(act.ID, team.ID, 0, t0); ok {
		t.Fatal("late timeout for prompt 0 advanced again")
	}
	after, ok, _ := c.AdvancePrompt(act.ID, team.ID, 1, t0)
	if !ok || !after.Done {
		t.Fatalf("team should be done: %+v", after)
	}
	if !c.AllDone(act.ID) {
		t.Fatal("AllDone should be true")
	}
	if _, err := c.SubmitGuess(act.ID, team.ID, "p2", "dog", nil, t0); !errors.Is(err, apperr.ErrState) {
		t.Fatalf("guess after done: %v", err)
	}
}

func TestChallengeStatusViews(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat", "four legs", "meows"))
	team := formed(t, c, act, "p1", "p2")[0]

	drawer, err := c.ChallengeStatus(act.ID, team.ID, "p1", t0.Add(25*time.Second))
	if err != nil {
		t.Fatalf("ChallengeStatus: %v", err)
	}
	if drawer.Role != "drawer" || drawer.Prompt != "cat" {
		t.Fatalf("drawer view = %+v", drawer)
	}
	if diff := cmp.Diff([]string{"four legs"}, drawer.Hints); diff != "" {
		t.Fatalf("hints (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{20, 40}, drawer.HintRevealAt); diff != "" {
		t.Fatalf("schedule (-want +got):\n%s", diff)
	}

	guesser, _ := c.ChallengeStatus(act.ID, team.ID, "p2", t0.Add(25*time.Second))
	if guesser.Role != "guesser" || guesser.Prompt != "" {
		t.Fatalf("guesser view leaks prompt: %+v", guesser)
	}
}

func TestRemoveMemberRotatesDrawer(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	act := challenge(prompt("cat"))
	team := formed(t, c, act, "p1", "p2", "p3", "p4")[0] // p1, p3

	changed := c.RemoveMember(act.ID, "p1")
	if len(changed) != 1 || changed[0].DrawerID != "p3" {
		t.Fatalf("changed = %+v", changed)
	}
	if _, ok := c.TeamOf(act.ID, "p1"); ok {
		t.Fatal("p1 still on a team")
	}
	got, _ := c.Team(act.ID, team.ID)
	if diff := cmp.Diff([]string{"p3"}, got.MemberIDs); diff != "" {
		t.Fatalf("members (-want +got):\n%s", diff)
	}
	if changed := c.RemoveMember(act.ID, "p2"); len(changed) != 1 {
		t.Fatalf("p2 was drawer of team 2, changed = %+v", changed)
	}
}

func TestRemoveMemberLeavesOtherActivities(t *testing.T) {
	c := NewCoordinator(DefaultConfig())
	first := challenge(prompt("cat"))
	second := challenge(prompt("dog"))
	old := formed(t, c, first, "p1", "p2", "p3", "p4")[0]
	formed(t, c, second, "p1", "p2", "p3", "p4")

	if changed := c.RemoveMember(second.ID, "p1"); len(changed) != 1 {
		t.Fatalf("changed = %+v", changed)
	}
	if _, ok := c.TeamOf(second.ID, "p1"); ok {
		t.Fatal("p1 still on a team in the current activity")
	}
	got, _ := c.Team(first.ID, old.ID)
	if diff := cmp.Diff(old, got); diff != "" {
		t.Fatalf("earlier team changed (-want +got):\n%s", diff)
	}
	if changed := c.RemoveMember(uuid.New(), "p2"); changed != nil {
		t.Fatalf("unknown activity changed = %+v", changed)
	}
}
