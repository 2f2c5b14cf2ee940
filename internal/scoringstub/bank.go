package scoringstub

import (
	"strconv"
	"strings"

	"github.com/gradlink/proctor/internal/models"
)

// Canned question bank for local development and tests. Two questions per
// matched role keeps full interview runs short.

var roleQuestions = map[string][]string{
	"backend engineer": {
		"Walk me through how you would design a rate limiter for a public API.",
		"Describe a production incident you debugged and what you changed afterwards.",
	},
	"frontend engineer": {
		"How do you decide between client-side and server-side rendering?",
		"Describe how you would profile and fix a slow page.",
	},
	"data engineer": {
		"How would you backfill a large table without downtime?",
		"Explain how you validate data quality in a pipeline.",
	},
}

var genericQuestions = []string{
	"Tell me about a project you are proud of and your specific contribution.",
	"Describe a time you disagreed with a teammate and how it was resolved.",
}

func questionsForRoles(roles []models.Role) []models.Question {
	var out []models.Question
	seq := 1
	add := func(role, text string) {
		out = append(out, models.Question{
			ID:         "q" + strconv.Itoa(seq),
			Question:   text,
			Role:       role,
			Difficulty: "medium",
		})
		seq++
	}

	for _, r := range roles {
		bank, ok := roleQuestions[strings.ToLower(strings.TrimSpace(r.Name))]
		if !ok {
			continue
		}
		for _, q := range bank {
			add(r.Name, q)
		}
	}
	if len(out) == 0 {
		for _, q := range genericQuestions {
			add("general", q)
		}
	}
	return out
}
