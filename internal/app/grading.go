package app

import (
	"math"

	"quiz-platform/internal/domain"
)

// Tier is the feedback band for a percentage.
type Tier string

const (
	TierPerfect    Tier = "perfect"
	TierExcellent  Tier = "excellent"
	TierGood       Tier = "good"
	TierKeepTrying Tier = "keep_trying"
)

// Feedback is what the result page shows above the score.
type Feedback struct {
	Tier    Tier   `json:"tier"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Summary is the derived view of a single result.
type Summary struct {
	Score      int      `json:"score"`
	Total      int      `json:"total"`
	Incorrect  int      `json:"incorrect"`
	Percentage int      `json:"percentage"`
	Feedback   Feedback `json:"feedback"`
}

// OptionMark classifies an option in the review.
type OptionMark string

const (
	MarkCorrect     OptionMark = "correct"
	MarkWrongChoice OptionMark = "wrong_choice"
	MarkUnselected  OptionMark = "unselected"
)

type OptionReview struct {
	Text string     `json:"text"`
	Mark OptionMark `json:"mark"`
}

// QuestionReview shows one question after submission.
type QuestionReview struct {
	QuestionID   string         `json:"questionId"`
	QuestionText string         `json:"questionText"`
	Selected     string         `json:"selected,omitempty"`
	Answered     bool           `json:"answered"`
	Correct      bool           `json:"correct"`
	Options      []OptionReview `json:"options"`
}

// Outcome is handed to the client once a session completes.
type Outcome struct {
	Result  domain.QuizResult `json:"result"`
	Summary Summary           `json:"summary"`
	Review  []QuestionReview  `json:"review,omitempty"`
}

// Score counts questions whose recorded answer equals the correct answer.
// Unanswered questions never score.
func Score(questions []domain.Question, answers map[string]string) int {
	score := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.CorrectAnswer {
			score++
		}
	}
	return score
}

// Percentage rounds score/total*100 half-up. A zero total yields 0.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(score) * 100 / float64(total)))
}

// FeedbackFor picks the first matching tier: 100, >=80, >=50, otherwise keep trying.
func FeedbackFor(percentage int) Feedback {
	switch {
	case percentage == 100:
		return Feedback{Tier: TierPerfect, Title: "Perfect Score!", Message: "Outstanding! You're a true master of this subject."}
	case percentage >= 80:
		return Feedback{Tier: TierExcellent, Title: "Excellent Work!", Message: "You have a strong understanding of the material."}
	case percentage >= 50:
		return Feedback{Tier: TierGood, Title: "Good Job!", Message: "You passed! A little more practice will make you an expert."}
	default:
		return Feedback{Tier: TierKeepTrying, Title: "Keep Trying!", Message: "Don't give up. Review the material and try again."}
	}
}

// Summarize derives the score breakdown of a stored result.
func Summarize(result domain.QuizResult) Summary {
	pct := Percentage(result.Score, result.TotalQuestions)
	return Summary{
		Score:      result.Score,
		Total:      result.TotalQuestions,
		Incorrect:  result.TotalQuestions - result.Score,
		Percentage: pct,
		Feedback:   FeedbackFor(pct),
	}
}

// Review classifies every option of every question against the student's answers.
func Review(questions []domain.Question, answers map[string]string) []QuestionReview {
	out := make([]QuestionReview, 0, len(questions))
	for _, q := range questions {
		selected, answered := answers[q.ID]
		item := QuestionReview{
			QuestionID:   q.ID,
			QuestionText: q.QuestionText,
			Selected:     selected,
			Answered:     answered,
			Correct:      answered && selected == q.CorrectAnswer,
			Options:      make([]OptionReview, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			mark := MarkUnselected
			switch {
			case opt == q.CorrectAnswer:
				mark = MarkCorrect
			case answered && opt == selected:
				mark = MarkWrongChoice
			}
			item.Options = append(item.Options, OptionReview{Text: opt, Mark: mark})
		}
		out = append(out, item)
	}
	return out
}

// StudentDashboard aggregates a student's history.
type StudentDashboard struct {
	RecentQuizzes []domain.QuizResult `json:"recentQuizzes"`
	SubjectsTaken int                 `json:"subjectsTaken"`
	AverageScore  int                 `json:"averageScore"`
}

// SubjectAttempts is one row of the admin dashboard chart.
type SubjectAttempts struct {
	SubjectID    string  `json:"subjectId"`
	Name         string  `json:"name"`
	Attempts     int     `json:"attempts"`
	AverageScore float64 `json:"averageScore"`
}

// AdminDashboard aggregates the whole platform.
type AdminDashboard struct {
	StudentCount    int               `json:"studentCount"`
	SubjectCount    int               `json:"subjectCount"`
	TotalAttempts   int               `json:"totalAttempts"`
	SubjectAttempts []SubjectAttempts `json:"subjectAttempts"`
}

const recentQuizLimit = 5

// summarizeHistory expects history sorted newest first.
func summarizeHistory(history []domain.QuizResult) StudentDashboard {
	recent := history
	if len(recent) > recentQuizLimit {
		recent = recent[:recentQuizLimit]
	}
	subjects := make(map[string]struct{}, len(history))
	var ratio float64
	for _, r := range history {
		subjects[r.SubjectID] = struct{}{}
		if r.TotalQuestions > 0 {
			ratio += float64(r.Score) / float64(r.TotalQuestions)
		}
	}
	avg := 0
	if len(history) > 0 {
		avg = int(math.Round(ratio / float64(len(history)) * 100))
	}
	return StudentDashboard{
		RecentQuizzes: append([]domain.QuizResult{}, recent...),
		SubjectsTaken: len(subjects),
		AverageScore:  avg,
	}
}

func subjectAttempts(subjects []domain.Subject, results []domain.QuizResult) []SubjectAttempts {
	type tally struct{ attempts, score, possible int }
	bySubject := make(map[string]*tally, len(subjects))
	for _, r := range results {
		t, ok := bySubject[r.SubjectID]
		if !ok {
			t = &tally{}
			bySubject[r.SubjectID] = t
		}
		t.attempts++
		t.score += r.Score
		t.possible += r.TotalQuestions
	}
	rows := make([]SubjectAttempts, 0, len(subjects))
	for _, s := range subjects {
		row := SubjectAttempts{SubjectID: s.ID, Name: s.Name}
		if t, ok := bySubject[s.ID]; ok {
			row.Attempts = t.attempts
			if t.possible > 0 {
				row.AverageScore = float64(t.score) / float64(t.possible) * 100
			}
		}
		rows = append(rows, row)
	}
	return rows
}
