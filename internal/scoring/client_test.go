package scoring

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/utils"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewClient(srv.URL, 2*time.Second, nil), srv
}

func TestNextQuestionExhaustionSignals(t *testing.T) {
	cases := []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"no content", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}},
		{"empty body", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
		{"null body", func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "null")
		}},
		{"empty object", func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, "{}")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, srv := newTestClient(tc.fn)
			defer srv.Close()

			q, err := client.NextQuestion(context.Background(), "s1")
			require.NoError(t, err)
			assert.Nil(t, q)
		})
	}
}

func TestNextQuestionReturnsPrompt(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interview/s1/question", r.URL.Path)
		json.NewEncoder(w).Encode(models.Question{ID: "q7", Question: "why", Role: "backend", Difficulty: "hard"})
	}))
	defer srv.Close()

	q, err := client.NextQuestion(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "q7", q.ID)
	assert.Equal(t, "backend", q.Role)
}

func TestErrorCodeMapping(t *testing.T) {
	t.Run("4xx maps to invalid argument", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad question id", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := client.NextQuestion(context.Background(), "s1")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
		assert.Equal(t, "bad question id", utils.UserMessage(err))
	})

	t.Run("5xx maps to unavailable", func(t *testing.T) {
		client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := client.Report(context.Background(), "s1")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
	})

	t.Run("unreachable maps to unavailable", func(t *testing.T) {
		client := NewClient("http://127.0.0.1:1", 200*time.Millisecond, nil)
		_, err := client.NextQuestion(context.Background(), "s1")
		require.Error(t, err)
		assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
	})
}

func TestStartInterviewValidatesResponse(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Roles []models.Role `json:"roles"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Roles, 1)
		json.NewEncoder(w).Encode(models.StartResult{SessionID: "s9", TotalQuestions: 4})
	}))
	defer srv.Close()

	res, err := client.StartInterview(context.Background(), []models.Role{{Name: "backend"}})
	require.NoError(t, err)
	assert.Equal(t, "s9", res.SessionID)
	assert.Equal(t, 4, res.TotalQuestions)

	_, err = client.StartInterview(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestStartInterviewRejectsMissingSessionID(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "{}")
	}))
	defer srv.Close()

	_, err := client.StartInterview(context.Background(), []models.Role{{Name: "backend"}})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestSubmitAudioAnswerUploadShape(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interview/s1/answer/audio", r.URL.Path)
		assert.Equal(t, "q2", r.URL.Query().Get("question_id"))

		f, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "answer.ogg", header.Filename)

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, "opus-bytes", string(data))

		json.NewEncoder(w).Encode(models.AnswerResult{HasMoreQuestions: true})
	}))
	defer srv.Close()

	hasMore, err := client.SubmitAudioAnswer(context.Background(), "s1", "q2", []byte("opus-bytes"), "ogg")
	require.NoError(t, err)
	assert.True(t, hasMore)
}

func TestSubmitAudioAnswerRejectsEmptyPayload(t *testing.T) {
	client := NewClient("http://unused", time.Second, nil)
	_, err := client.SubmitAudioAnswer(context.Background(), "s1", "q1", nil, "webm")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
}

func TestSubmitAnswerSendsSentinelText(t *testing.T) {
	var got struct {
		QuestionID string `json:"question_id"`
		AnswerText string `json:"answer_text"`
	}
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(models.AnswerResult{HasMoreQuestions: false})
	}))
	defer srv.Close()

	hasMore, err := client.SubmitAnswer(context.Background(), "s1", "q1", "[no answer: time expired]")
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Equal(t, "q1", got.QuestionID)
	assert.Equal(t, "[no answer: time expired]", got.AnswerText)
}

func TestAnalyzeResumeUpload(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/resume/analyze", r.URL.Path)
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "cv.pdf", header.Filename)
		io.WriteString(w, `{"roles":[{"name":"Data Engineer","confidence":0.8}]}`)
	}))
	defer srv.Close()

	roles, err := client.AnalyzeResume(context.Background(), "cv.pdf", strings.NewReader("resume body"))
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Data Engineer", roles[0].Name)
}

func TestExportValidatesJSON(t *testing.T) {
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "not-json")
	}))
	defer srv.Close()

	_, err := client.Export(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestDeleteSessionSkipsEmptyID(t *testing.T) {
	called := false
	client, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, client.DeleteSession(context.Background(), ""))
	assert.False(t, called)

	require.NoError(t, client.DeleteSession(context.Background(), "s1"))
	assert.True(t, called)
}
