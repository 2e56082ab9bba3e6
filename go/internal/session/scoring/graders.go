package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/mcdev12/livequiz/go/internal/apperr"
	"github.com/mcdev12/livequiz/go/internal/models"
)

// Grade is the outcome of grading one answer against a content item
type Grade struct {
	Correct     bool
	Explanation string
}

// Grader grades answers for one activity type
type Grader interface {
	Grade(item models.ContentItem, answer json.RawMessage) (Grade, error)
}

// GraderFunc adapts a function to Grader
type GraderFunc func(item models.ContentItem, answer json.RawMessage) (Grade, error)

func (f GraderFunc) Grade(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	return f(item, answer)
}

var graders = map[models.ActivityType]Grader{
	models.ActivityTypeMultipleChoice: GraderFunc(gradeMultipleChoice),
	models.ActivityTypeTrueFalse:      GraderFunc(gradeTrueFalse),
	models.ActivityTypeOpenEnded:      GraderFunc(gradeOpenEnded),
	models.ActivityTypeFillInBlank:    GraderFunc(gradeFillInBlank),
	models.ActivityTypeSorting:        GraderFunc(gradeSorting),
	models.ActivityTypeMatching:       GraderFunc(gradeMatching),
	models.ActivityTypeMathProblem:    GraderFunc(gradeMathProblem),
	models.ActivityTypeTeamChallenge:  GraderFunc(gradeTeamChallenge),
}

// GradeAnswer dispatches on the activity type
func GradeAnswer(t models.ActivityType, item models.ContentItem, answer json.RawMessage) (Grade, error) {
	g, ok := graders[t]
	if !ok {
		return Grade{}, apperr.Validation("no grader for activity type %q", t)
	}
	grade, err := g.Grade(item, answer)
	if err != nil {
		return Grade{}, err
	}
	grade.Explanation = explanation(item.AnswerKey)
	return grade, nil
}

// Normalize trims and lowercases free-text answers before comparison
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MatchesAny reports whether text matches the canonical answer or any alternate after normalization
func MatchesAny(text, canonical string, alternates []string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	if n == Normalize(canonical) {
		return true
	}
	for _, alt := range alternates {
		if n == Normalize(alt) {
			return true
		}
	}
	return false
}

// TextAnswer is the answer key shape shared by fill-in-blank blanks and team prompts
type TextAnswer struct {
	Answer     string   `json:"answer"`
	Alternates []string `json:"alternates,omitempty"`
}

func explanation(key json.RawMessage) string {
	var k struct {
		Explanation string `json:"explanation"`
	}
	if len(key) == 0 || json.Unmarshal(key, &k) != nil {
		return ""
	}
	return k.Explanation
}

func decodeKey(item models.ContentItem, v any) error {
	if len(item.AnswerKey) == 0 {
		return fmt.Errorf("content item %s has no answer key", item.ID)
	}
	if err := json.Unmarshal(item.AnswerKey, v); err != nil {
		return fmt.Errorf("decode answer key for %s: %w", item.ID, err)
	}
	return nil
}

func decodeAnswer(answer json.RawMessage, v any) error {
	if len(answer) == 0 {
		return apperr.Validation("answer is required")
	}
	if err := json.Unmarshal(answer, v); err != nil {
		return apperr.Validation("malformed answer: %v", err)
	}
	return nil
}

// intOrInts accepts either a single index or a list of indices
func intOrInts(raw json.RawMessage) ([]int, error) {
	var one int
	if err := json.Unmarshal(raw, &one); err == nil {
		return []int{one}, nil
	}
	var many []int
	if err := decodeAnswer(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

// stringOrStrings accepts either a single string or a list of strings
func stringOrStrings(raw json.RawMessage) ([]string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := decodeAnswer(raw, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func gradeMultipleChoice(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key struct {
		CorrectIndex   *int  `json:"correct_index"`
		CorrectIndices []int `json:"correct_indices"`
	}
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}
	want := key.CorrectIndices
	if key.CorrectIndex != nil {
		want = []int{*key.CorrectIndex}
	}

	got, err := intOrInts(answer)
	if err != nil {
		return Grade{}, err
	}

	want = slices.Clone(want)
	got = slices.Clone(got)
	slices.Sort(want)
	slices.Sort(got)
	return Grade{Correct: len(want) > 0 && slices.Equal(slices.Compact(want), slices.Compact(got))}, nil
}

func gradeTrueFalse(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key struct {
		Correct bool `json:"correct"`
	}
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}
	var got bool
	if err := decodeAnswer(answer, &got); err != nil {
		return Grade{}, err
	}
	return Grade{Correct: got == key.Correct}, nil
}

func gradeOpenEnded(_ models.ContentItem, answer json.RawMessage) (Grade, error) {
	var got string
	if err := decodeAnswer(answer, &got); err != nil {
		return Grade{}, err
	}
	return Grade{Correct: strings.TrimSpace(got) != ""}, nil
}

func gradeFillInBlank(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key struct {
		TextAnswer
		Blanks []TextAnswer `json:"blanks"`
	}
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}
	blanks := key.Blanks
	if len(blanks) == 0 && key.Answer != "" {
		blanks = []TextAnswer{key.TextAnswer}
	}

	got, err := stringOrStrings(answer)
	if err != nil {
		return Grade{}, err
	}
	if len(blanks) == 0 || len(got) != len(blanks) {
		return Grade{Correct: false}, nil
	}
	for i, b := range blanks {
		if !MatchesAny(got[i], b.Answer, b.Alternates) {
			return Grade{Correct: false}, nil
		}
	}
	return Grade{Correct: true}, nil
}

func gradeSorting(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key struct {
		Order []string `json:"order"`
	}
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}
	var got []string
	if err := decodeAnswer(answer, &got); err != nil {
		return Grade{}, err
	}
	return Grade{Correct: len(key.Order) > 0 && slices.Equal(key.Order, got)}, nil
}

func gradeMatching(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key struct {
		Pairs map[string]string `json:"pairs"`
	}
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}
	var got map[string]string
	if err := decodeAnswer(answer, &got); err != nil {
		return Grade{}, err
	}
	if len(key.Pairs) == 0 || len(got) != len(key.Pairs) {
		return Grade{Correct: false}, nil
	}
	for left, right := range key.Pairs {
		if got[left] != right {
			return Grade{Correct: false}, nil
		}
	}
	return Grade{Correct: true}, nil
}

func gradeMathProblem(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key struct {
		Answer    float64 `json:"answer"`
		Tolerance float64 `json:"tolerance"`
	}
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}

	var got float64
	if err := json.Unmarshal(answer, &got); err != nil {
		var s string
		if err := decodeAnswer(answer, &s); err != nil {
			return Grade{}, err
		}
		got, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Grade{}, apperr.Validation("answer %q is not a number", s)
		}
	}

	tolerance := math.Max(key.Tolerance, 1e-9)
	return Grade{Correct: math.Abs(got-key.Answer) <= tolerance}, nil
}

func gradeTeamChallenge(item models.ContentItem, answer json.RawMessage) (Grade, error) {
	var key TextAnswer
	if err := decodeKey(item, &key); err != nil {
		return Grade{}, err
	}
	var got string
	if err := decodeAnswer(answer, &got); err != nil {
		return Grade{}, err
	}
	return Grade{Correct: MatchesAny(got, key.Answer, key.Alternates)}, nil
}
