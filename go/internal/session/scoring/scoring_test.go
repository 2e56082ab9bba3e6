package scoring

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

func item(key string) models.ContentItem {
	return models.ContentItem{ID: uuid.New(), AnswerKey: json.RawMessage(key), DurationSec: 60}
}

func TestGradeAnswer(t *testing.T) {
	tests := []struct {
		name    string
		typ     models.ActivityType
		key     string
		answer  string
		correct bool
	}{
		{"mc single right", models.ActivityTypeMultipleChoice, `{"correct_index":2}`, `2`, true},
		{"mc single wrong", models.ActivityTypeMultipleChoice, `{"correct_index":2}`, `1`, false},
		{"mc multi any order", models.ActivityTypeMultipleChoice, `{"correct_indices":[0,3]}`, `[3,0]`, true},
		{"mc multi partial", models.ActivityTypeMultipleChoice, `{"correct_indices":[0,3]}`, `[0]`, false},
		{"true false", models.ActivityTypeTrueFalse, `{"correct":false}`, `false`, true},
		{"open ended", models.ActivityTypeOpenEnded, `{}`, `"photosynthesis makes sugar"`, true},
		{"open ended blank", models.ActivityTypeOpenEnded, `{}`, `"   "`, false},
		{"blank normalized", models.ActivityTypeFillInBlank, `{"answer":"Paris"}`, `"  pARIS "`, true},
		{"blank alternate", models.ActivityTypeFillInBlank, `{"answer":"United States","alternates":["USA","U.S."]}`, `"usa"`, true},
		{"blank wrong", models.ActivityTypeFillInBlank, `{"answer":"Paris"}`, `"Lyon"`, false},
		{"multi blank", models.ActivityTypeFillInBlank, `{"blanks":[{"answer":"red"},{"answer":"blue","alternates":["navy"]}]}`, `["Red","NAVY"]`, true},
		{"multi blank count", models.ActivityTypeFillInBlank, `{"blanks":[{"answer":"red"},{"answer":"blue"}]}`, `["red"]`, false},
		{"sorting", models.ActivityTypeSorting, `{"order":["a","b","c"]}`, `["a","b","c"]`, true},
		{"sorting wrong", models.ActivityTypeSorting, `{"order":["a","b","c"]}`, `["b","a","c"]`, false},
		{"matching", models.ActivityTypeMatching, `{"pairs":{"dog":"bark","cat":"meow"}}`, `{"cat":"meow","dog":"bark"}`, true},
		{"matching wrong", models.ActivityTypeMatching, `{"pairs":{"dog":"bark","cat":"meow"}}`, `{"cat":"bark","dog":"meow"}`, false},
		{"math number", models.ActivityTypeMathProblem, `{"answer":3.14,"tolerance":0.01}`, `3.141`, true},
		{"math string", models.ActivityTypeMathProblem, `{"answer":12}`, `" 12 "`, true},
		{"math off", models.ActivityTypeMathProblem, `{"answer":12}`, `13`, false},
		{"team guess", models.ActivityTypeTeamChallenge, `{"answer":"Cat","alternates":["kitty"]}`, `" KITTY"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GradeAnswer(tt.typ, item(tt.key), json.RawMessage(tt.answer))
			if err != nil {
				t.Fatalf("GradeAnswer: %v", err)
			}
			if got.Correct != tt.correct {
				t.Fatalf("Correct = %v, want %v", got.Correct, tt.correct)
			}
		})
	}
}

func TestGradeAnswerRejectsMalformed(t *testing.T) {
	_, err := GradeAnswer(models.ActivityTypeTrueFalse, item(`{"correct":true}`), json.RawMessage(`"yes"`))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	_, err = GradeAnswer(models.ActivityType("DANCE"), item(`{}`), json.RawMessage(`1`))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
	_, err = GradeAnswer(models.ActivityTypeMathProblem, item(`{"answer":1}`), json.RawMessage(`"one"`))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestExplanationIsReturned(t *testing.T) {
	got, err := GradeAnswer(models.ActivityTypeTrueFalse, item(`{"correct":true,"explanation":"water boils at 100C"}`), json.RawMessage(`true`))
	if err != nil {
		t.Fatalf("GradeAnswer: %v", err)
	}
	if got.Explanation != "water boils at 100C" {
		t.Fatalf("Explanation = %q", got.Explanation)
	}
}

func TestPoints(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name      string
		correct   bool
		remaining time.Duration
		duration  time.Duration
		want      int
	}{
		{"wrong", false, 30 * time.Second, time.Minute, 0},
		{"instant", true, time.Minute, time.Minute, 150},
		{"half", true, 30 * time.Second, time.Minute, 125},
		{"buzzer", true, 0, time.Minute, 100},
		{"clamped", true, 2 * time.Minute, time.Minute, 150},
		{"untimed", true, 0, 0, 100},
	}
	for _, tt := range tests {
		if got := cfg.Points(tt.correct, tt.remaining, tt.duration); got != tt.want {
			t.Errorf("%s: Points = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func submitInput(user string, activityID uuid.UUID, it models.ContentItem, idx int, answer string) SubmitInput {
	return SubmitInput{
		UserID:          user,
		ActivityType:    models.ActivityTypeTrueFalse,
		ActivityID:      activityID,
		Item:            it,
		ContentIndex:    idx,
		Answer:          json.RawMessage(answer),
		ClientRemaining: -1,
		ServerRemaining: 30 * time.Second,
		Duration:        time.Minute,
		At:              time.Unix(0, 0),
	}
}

func TestSubmitIsAtMostOnce(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	a.Register("p1", "Ada")
	act := uuid.New()
	it := item(`{"correct":true}`)

	first, err := a.Submit(submitInput("p1", act, it, 0, `true`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if first.Duplicate || !first.Submission.Correct || first.Submission.PointsEarned != 125 {
		t.Fatalf("first = %+v", first)
	}

	again, err := a.Submit(submitInput("p1", act, it, 0, `false`))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !again.Duplicate || again.Submission.ID != first.Submission.ID {
		t.Fatalf("retry was rescored: %+v", again)
	}
	if a.Score("p1") != 125 {
		t.Fatalf("Score = %d, want 125", a.Score("p1"))
	}
	if got := len(a.Submissions()); got != 1 {
		t.Fatalf("ledger has %d submissions, want 1", got)
	}
}

func TestSubmitUsesSmallerRemaining(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	a.Register("p1", "Ada")
	in := submitInput("p1", uuid.New(), item(`{"correct":true}`), 0, `true`)
	in.ClientRemaining = 60 * time.Second // claims more than the server allows
	res, err := a.Submit(in)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Submission.PointsEarned != 125 {
		t.Fatalf("PointsEarned = %d, want 125", res.Submission.PointsEarned)
	}
}

func TestSubmitUnknownParticipant(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	if _, err := a.Submit(submitInput("ghost", uuid.New(), item(`{"correct":true}`), 0, `true`)); err == nil {
		t.Fatal("expected error for unregistered participant")
	}
}

func TestLeaderboardOrderAndRank(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	for _, p := range []string{"p1", "p2", "p3", "p4", "p5"} {
		a.Register(p, p)
	}
	award := func(id string, points int, correct bool) {
		a.Award(id, points)
		a.Tally(id, correct)
	}
	award("p1", 100, true)
	award("p2", 200, true)
	award("p3", 100, true)
	award("p3", 0, false)
	award("p4", 50, true)
	award("p4", 50, true) // same score as p1 and p3, more correct answers
	award("p5", 100, true)

	got := a.Leaderboard()
	want := []models.LeaderboardEntry{
		{UserID: "p2", DisplayName: "p2", Score: 200, CorrectCount: 1, Rank: 1},
		{UserID: "p4", DisplayName: "p4", Score: 100, CorrectCount: 2, Rank: 2},
		{UserID: "p1", DisplayName: "p1", Score: 100, CorrectCount: 1, Rank: 2},
		{UserID: "p3", DisplayName: "p3", Score: 100, CorrectCount: 1, IncorrectCount: 1, Rank: 2},
		{UserID: "p5", DisplayName: "p5", Score: 100, CorrectCount: 1, Rank: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Leaderboard mismatch (-want +got):\n%s", diff)
	}

	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Fatalf("entry %d outranks entry %d with a lower score", i-1, i)
		}
	}
}

func TestUnregisterHidesButKeepsScore(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	a.Register("p1", "Ada")
	a.Register("p2", "Bob")
	a.Award("p1", 100)

	a.Unregister("p1")
	if got := a.Leaderboard(); len(got) != 1 || got[0].UserID != "p2" {
		t.Fatalf("Leaderboard = %+v", got)
	}

	a.Register("p1", "Ada L.")
	got := a.Leaderboard()
	if got[0].UserID != "p1" || got[0].Score != 100 || got[0].DisplayName != "Ada L." {
		t.Fatalf("rejoined entry = %+v", got[0])
	}
}
