package scoringstub

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/utils"
)

// Server is an in-process implementation of the scoring/question service
// contract, backed by the canned question bank. It exists for local
// development (--stub) and the end-to-end tests; scoring is intentionally
// crude.
type Server struct {
	log *logrus.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id        string
	roles     []models.Role
	questions []models.Question
	answers   map[string]answer
	next      int
	createdAt time.Time
}

type answer struct {
	questionID string
	text       string
	audioBytes int
	audioExt   string
	score      float64
}

const maxScorePerQuestion = 5.0

func New(log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	return &Server{
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Router builds the gin handler implementing the full contract.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/resume/analyze", s.analyzeResume)
	r.POST("/interview/start", s.startInterview)
	r.GET("/interview/:session_id/question", s.nextQuestion)
	r.POST("/interview/:session_id/answer", s.submitAnswer)
	r.POST("/interview/:session_id/answer/audio", s.submitAudioAnswer)
	r.GET("/interview/:session_id/report", s.report)
	r.GET("/interview/:session_id/export", s.export)
	r.DELETE("/interview/:session_id", s.deleteSession)

	return r
}

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, status int, code utils.Code, msg string) {
	c.JSON(status, apiError{Code: code, Message: msg})
}

func (s *Server) analyzeResume(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "file is required")
		return
	}
	defer file.Close()
	_, _ = io.Copy(io.Discard, file)

	// The real service runs an LLM over the resume; the stub keys off the
	// filename so tests can steer the detected roles.
	role := models.Role{Name: "Backend Engineer", Confidence: 0.9, Rationale: "stub"}
	name := strings.ToLower(header.Filename)
	switch {
	case strings.Contains(name, "frontend"):
		role.Name = "Frontend Engineer"
	case strings.Contains(name, "data"):
		role.Name = "Data Engineer"
	}

	c.JSON(http.StatusOK, gin.H{"roles": []models.Role{role}})
}

func (s *Server) startInterview(c *gin.Context) {
	var req struct {
		Roles []models.Role `json:"roles"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "invalid request body")
		return
	}
	if len(req.Roles) == 0 {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "roles are required")
		return
	}

	sess := &session{
		id:        uuid.NewString(),
		roles:     req.Roles,
		questions: questionsForRoles(req.Roles),
		answers:   make(map[string]answer),
		createdAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"session_id": sess.id,
		"questions":  len(sess.questions),
	}).Info("stub interview started")

	c.JSON(http.StatusOK, models.StartResult{
		SessionID:      sess.id,
		TotalQuestions: len(sess.questions),
	})
}

func (s *Server) getSession(c *gin.Context) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.sessions[c.Param("session_id")]
	if sess == nil {
		writeError(c, http.StatusNotFound, utils.CodeNotFound, "session not found")
		return nil
	}
	return sess
}

func (s *Server) nextQuestion(c *gin.Context) {
	sess := s.getSession(c)
	if sess == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.next >= len(sess.questions) {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, sess.questions[sess.next])
}

func (s *Server) recordAnswer(c *gin.Context, sess *session, a answer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.next >= len(sess.questions) {
		writeError(c, http.StatusConflict, utils.CodeConflict, "all questions already answered")
		return
	}
	current := sess.questions[sess.next]
	if a.questionID != current.ID {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "question_id does not match the active question")
		return
	}

	sess.answers[a.questionID] = a
	sess.next++

	c.JSON(http.StatusOK, models.AnswerResult{
		HasMoreQuestions: sess.next < len(sess.questions),
	})
}

func (s *Server) submitAnswer(c *gin.Context) {
	sess := s.getSession(c)
	if sess == nil {
		return
	}

	var req struct {
		QuestionID string `json:"question_id"`
		AnswerText string `json:"answer_text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.QuestionID == "" {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "question_id and answer_text are required")
		return
	}

	score := 2.0
	if strings.HasPrefix(req.AnswerText, "[no answer") {
		score = 0
	}
	s.recordAnswer(c, sess, answer{
		questionID: req.QuestionID,
		text:       req.AnswerText,
		score:      score,
	})
}

func (s *Server) submitAudioAnswer(c *gin.Context) {
	sess := s.getSession(c)
	if sess == nil {
		return
	}

	questionID := c.Query("question_id")
	if questionID == "" {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "question_id query parameter is required")
		return
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "audio file is required")
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(io.LimitReader(file, 25<<20))
	if len(data) == 0 {
		writeError(c, http.StatusBadRequest, utils.CodeInvalidArgument, "audio payload is empty")
		return
	}

	ext := "webm"
	if i := strings.LastIndex(header.Filename, "."); i >= 0 {
		ext = header.Filename[i+1:]
	}

	s.recordAnswer(c, sess, answer{
		questionID: questionID,
		audioBytes: len(data),
		audioExt:   ext,
		score:      3.0,
	})
}

func (s *Server) report(c *gin.Context) {
	sess := s.getSession(c)
	if sess == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	perRole := make(map[string]*models.RoleScore)
	var total, max float64
	for _, q := range sess.questions[:sess.next] {
		a := sess.answers[q.ID]
		total += a.score
		max += maxScorePerQuestion

		rs := perRole[q.Role]
		if rs == nil {
			rs = &models.RoleScore{RoleName: q.Role}
			perRole[q.Role] = rs
		}
		rs.TotalRawScore += a.score
		rs.MaxPossible += maxScorePerQuestion
	}

	rep := models.Report{
		TotalRawScore:  &total,
		MaxPossible:    &max,
		FinalSummary:   "Stub evaluation: audio answers score higher than text fallbacks.",
		TotalQuestions: len(sess.questions),
	}
	for _, q := range sess.questions {
		if rs, ok := perRole[q.Role]; ok {
			rep.Roles = append(rep.Roles, *rs)
			delete(perRole, q.Role)
		}
	}

	c.JSON(http.StatusOK, rep)
}

func (s *Server) export(c *gin.Context) {
	sess := s.getSession(c)
	if sess == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type line struct {
		QuestionID string  `json:"question_id"`
		Question   string  `json:"question"`
		AnswerText string  `json:"answer_text,omitempty"`
		AudioBytes int     `json:"audio_bytes,omitempty"`
		AudioExt   string  `json:"audio_ext,omitempty"`
		Score      float64 `json:"score"`
	}
	out := struct {
		SessionID string        `json:"session_id"`
		Roles     []models.Role `json:"roles"`
		CreatedAt time.Time     `json:"created_at"`
		Answers   []line        `json:"answers"`
	}{
		SessionID: sess.id,
		Roles:     sess.roles,
		CreatedAt: sess.createdAt,
	}
	for _, q := range sess.questions[:sess.next] {
		a := sess.answers[q.ID]
		out.Answers = append(out.Answers, line{
			QuestionID: q.ID,
			Question:   q.Question,
			AnswerText: a.text,
			AudioBytes: a.audioBytes,
			AudioExt:   a.audioExt,
			Score:      a.score,
		})
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteSession(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.Param("session_id")
	if _, ok := s.sessions[id]; !ok {
		writeError(c, http.StatusNotFound, utils.CodeNotFound, "session not found")
		return
	}
	delete(s.sessions, id)
	c.Status(http.StatusNoContent)
}
