package models

// Role is one detected candidate role from resume analysis. The list is
// immutable input to an interview session.
type Role struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Question is the currently active prompt. At most one live Question exists
// per session; it is replaced wholesale on each cycle.
type Question struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Role       string `json:"role,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`
}

// StartResult is the scoring service's reply to an interview start.
type StartResult struct {
	SessionID      string `json:"session_id"`
	TotalQuestions int    `json:"total_questions"`
}

// AnswerResult is the scoring service's reply to an answer submission.
type AnswerResult struct {
	HasMoreQuestions bool `json:"has_more_questions"`
}

// RoleScore is a per-role score line inside the final report.
type RoleScore struct {
	RoleName      string  `json:"role_name"`
	TotalRawScore float64 `json:"total_raw_score"`
	MaxPossible   float64 `json:"max_possible"`
}

// Report is the final scoring summary. Numeric fields are pointers so an
// absent score is distinguishable from a zero score.
type Report struct {
	TotalRawScore  *float64    `json:"total_raw_score,omitempty"`
	MaxPossible    *float64    `json:"max_possible,omitempty"`
	Roles          []RoleScore `json:"roles,omitempty"`
	FinalSummary   string      `json:"final_summary,omitempty"`
	TotalQuestions int         `json:"total_questions"`
}
