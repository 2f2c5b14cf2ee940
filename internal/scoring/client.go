package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/utils"
)

// Client talks to the external scoring/question service. All proctoring
// logic is client-side; this is the only network dependency of a session.
type Client struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// do performs one request and returns the response body. Non-2xx responses
// become AppErrors carrying the body text as detail; 204 returns nil bytes.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "scoring service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(data))
		if detail == "" {
			detail = resp.Status
		}
		code := utils.CodeUnavailable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			code = utils.CodeInvalidArgument
		}
		return nil, utils.E(code, op, detail, nil)
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to encode request", err)
	}
	return c.do(ctx, op, http.MethodPost, path, "application/json", bytes.NewReader(buf))
}

// AnalyzeResume uploads a resume file and returns the detected roles.
func (c *Client) AnalyzeResume(ctx context.Context, filename string, r io.Reader) ([]models.Role, error) {
	const op = "ScoringClient.AnalyzeResume"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build upload", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to read resume", err)
	}
	if err := mw.Close(); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to build upload", err)
	}

	data, err := c.do(ctx, op, http.MethodPost, "/resume/analyze", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	var out struct {
		Roles []models.Role `json:"roles"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	return out.Roles, nil
}

// StartInterview registers a new session for the given roles.
func (c *Client) StartInterview(ctx context.Context, roles []models.Role) (models.StartResult, error) {
	const op = "ScoringClient.StartInterview"

	var res models.StartResult
	if len(roles) == 0 {
		return res, utils.E(utils.CodeInvalidArgument, op, "at least one role is required", nil)
	}

	data, err := c.postJSON(ctx, op, "/interview/start", map[string]any{"roles": roles})
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(data, &res); err != nil {
		return res, utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	if res.SessionID == "" {
		return res, utils.E(utils.CodeUnavailable, op, "scoring service returned no session id", nil)
	}
	return res, nil
}

// NextQuestion fetches the next prompt. A nil Question with nil error means
// the question queue is exhausted (204, empty body, null, or empty object).
func (c *Client) NextQuestion(ctx context.Context, sessionID string) (*models.Question, error) {
	const op = "ScoringClient.NextQuestion"

	data, err := c.do(ctx, op, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/question", "", nil)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	var q models.Question
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	if q.ID == "" {
		return nil, nil
	}
	return &q, nil
}

// SubmitAnswer submits a text-only answer (timeout or stopped-early
// fallback). Returns whether more questions remain.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, questionID, text string) (bool, error) {
	const op = "ScoringClient.SubmitAnswer"

	data, err := c.postJSON(ctx, op, "/interview/"+url.PathEscape(sessionID)+"/answer", map[string]any{
		"question_id": questionID,
		"answer_text": text,
	})
	if err != nil {
		return false, err
	}

	var res models.AnswerResult
	if err := json.Unmarshal(data, &res); err != nil {
		return false, utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	return res.HasMoreQuestions, nil
}

// SubmitAudioAnswer uploads a finished recording for the given question.
// ext is "webm" or "ogg" depending on the encoding the recorder selected.
func (c *Client) SubmitAudioAnswer(ctx context.Context, sessionID, questionID string, audio []byte, ext string) (bool, error) {
	const op = "ScoringClient.SubmitAudioAnswer"

	if len(audio) == 0 {
		return false, utils.E(utils.CodeInvalidArgument, op, "audio payload is empty", nil)
	}
	if ext == "" {
		ext = "webm"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "answer."+ext)
	if err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to build upload", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to build upload", err)
	}
	if err := mw.Close(); err != nil {
		return false, utils.E(utils.CodeInternal, op, "failed to build upload", err)
	}

	path := "/interview/" + url.PathEscape(sessionID) + "/answer/audio?question_id=" + url.QueryEscape(questionID)
	data, err := c.do(ctx, op, http.MethodPost, path, mw.FormDataContentType(), &buf)
	if err != nil {
		return false, err
	}

	var res models.AnswerResult
	if err := json.Unmarshal(data, &res); err != nil {
		return false, utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	return res.HasMoreQuestions, nil
}

// Report fetches the final scoring summary once all questions are answered.
func (c *Client) Report(ctx context.Context, sessionID string) (*models.Report, error) {
	const op = "ScoringClient.Report"

	data, err := c.do(ctx, op, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/report", "", nil)
	if err != nil {
		return nil, err
	}

	var rep models.Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "invalid response body", err)
	}
	return &rep, nil
}

// Export fetches the raw answer-log bundle as opaque JSON.
func (c *Client) Export(ctx context.Context, sessionID string) (json.RawMessage, error) {
	const op = "ScoringClient.Export"

	data, err := c.do(ctx, op, http.MethodGet, "/interview/"+url.PathEscape(sessionID)+"/export", "", nil)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, utils.E(utils.CodeUnavailable, op, "empty export", nil)
	}
	if !json.Valid(data) {
		return nil, utils.E(utils.CodeUnavailable, op, "invalid export body", nil)
	}
	return json.RawMessage(data), nil
}

// DeleteSession tears the session down server-side. Used on acquisition
// failure and explicit aborts.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	const op = "ScoringClient.DeleteSession"

	if sessionID == "" {
		return nil
	}
	_, err := c.do(ctx, op, http.MethodDelete, "/interview/"+url.PathEscape(sessionID), "", nil)
	if err != nil {
		c.log.WithError(err).WithField("session_id", sessionID).Warn("failed to delete session")
		return err
	}
	return nil
}
