package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"checkin/internal/assign"
	"checkin/internal/auth"
	"checkin/internal/board"
	"checkin/internal/quiz"
	"checkin/internal/roster"
	"checkin/internal/session"
	"checkin/internal/store"
)

type testEnv struct {
	router *gin.Engine
	repo   *roster.Repository
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	db, err := store.NewDB(ctx, store.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx, 5*time.Second))
	repo := roster.NewRepository(db)

	log := zap.NewNop().Sugar()
	sessions := session.NewMemoryProvider()
	assigner := assign.New(repo, repo, log, assign.WithRandom(rand.New(rand.NewPCG(7, 7))))
	flows := quiz.NewRegistry(quiz.Deps{
		Assigner:     assigner,
		Teams:        repo,
		Participants: repo,
		Log:          log,
	}, quiz.Config{Batch: 1, LoadingDuration: 5 * time.Millisecond}, sessions, time.Hour)

	h := New(Options{
		Log:          log,
		Issuer:       auth.Issuer{Name: "checkin", Key: "test-key", TTL: time.Hour},
		Flows:        flows,
		Sessions:     sessions,
		Roster:       roster.NewService(repo, nil, log, time.Second),
		Board:        board.NewService(repo, nil, 0, log),
		Typewriter:   quiz.Typewriter{Interval: time.Millisecond},
		Metrics:      NewMetrics(prometheus.NewRegistry()),
		Batch:        1,
		PublicURL:    "http://checkin.test/join",
		BoardRefresh: 10 * time.Millisecond,
		WaitTimeout:  2 * time.Second,
	})
	r := gin.New()
	h.Register(r)
	return &testEnv{router: r, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) session(t *testing.T) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var s auth.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.NotEmpty(t, s.Token)
	return s.Token
}

func (e *testEnv) team(t *testing.T, name string, active bool) roster.Team {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/admin/teams", "", roster.TeamCreate{Name: name, Batch: 1, IsActive: &active})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var team roster.Team
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &team))
	return team
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) quiz.Snapshot {
	t.Helper()
	var s quiz.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s), w.Body.String())
	return s
}

func joinAs(t *testing.T, e *testEnv, token, name string) quiz.Snapshot {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/join", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, quiz.StateName, decodeSnapshot(t, w).State)

	w = e.do(t, http.MethodPost, "/v1/join/name", token, gin.H{"name": name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decodeSnapshot(t, w)
	if s.State == quiz.StateResumed {
		return s
	}
	require.Equal(t, quiz.StateQ1, s.State)

	w = e.do(t, http.MethodPost, "/v1/join/answer", token, gin.H{"value": "spontaneous adventure"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodPost, "/v1/join/answer", token, gin.H{"value": "artistic expression"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, quiz.StateLoading, decodeSnapshot(t, w).State)

	w = e.do(t, http.MethodGet, "/v1/join?wait=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decodeSnapshot(t, w)
}

func TestJoinOverHTTP(t *testing.T) {
	e := newEnv(t)
	e.team(t, "Tiger", true)
	e.team(t, "Fox", true)
	e.team(t, "Bear", false)
	_, err := e.repo.Create(context.Background(), roster.ParticipantCreate{Name: "Early", Team: "Tiger", Batch: 1})
	require.NoError(t, err)

	token := e.session(t)
	s := joinAs(t, e, token, "Jamie")
	require.Equal(t, quiz.StateResult, s.State)
	require.Equal(t, "Fox", s.Team.Name)
	require.Equal(t, "Interesting result! Jamie leans toward spontaneous adventure and artistic expression.", s.Prompt)

	w := e.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me struct {
		Participant struct {
			Name          string `json:"name"`
			Team          string `json:"team"`
			RegisteredAgo string `json:"registered_ago"`
		} `json:"participant"`
		Team      roster.Team `json:"team"`
		Teammates []struct {
			Name string `json:"name"`
		} `json:"teammates"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, "Jamie", me.Participant.Name)
	require.Equal(t, "Fox", me.Team.Name)
	require.NotEmpty(t, me.Participant.RegisteredAgo)
	require.Len(t, me.Teammates, 1)

	// same name from another device resumes without a second record
	other := e.session(t)
	s = joinAs(t, e, other, "Jamie")
	require.Equal(t, quiz.StateResumed, s.State)
	require.Equal(t, "Fox", s.Team.Name)
	ps, err := e.repo.FindByName(context.Background(), "Jamie", 1)
	require.NoError(t, err)
	require.Len(t, ps, 1)

	w = e.do(t, http.MethodPost, "/v1/me/leave", token, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinRequiresSession(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodPost, "/v1/join", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = e.do(t, http.MethodGet, "/v1/me", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionRenewKeepsID(t *testing.T) {
	e := newEnv(t)
	token := e.session(t)
	iss := auth.Issuer{Name: "checkin", Key: "test-key"}
	first, err := iss.Parse(token)
	require.NoError(t, err)

	w := e.do(t, http.MethodPost, "/v1/sessions", token, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var s auth.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.Equal(t, first.SessionID(), s.ID)
	require.NotEmpty(t, w.Header().Get("Set-Cookie"))
}

func TestJoinErrors(t *testing.T) {
	e := newEnv(t)
	token := e.session(t)

	w := e.do(t, http.MethodPost, "/v1/join/answer", token, gin.H{"value": "personal time"})
	require.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodPost, "/v1/join/name", token, gin.H{"name": "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/join/name", token, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/join/name", token, gin.H{"name": "Kim"})
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodPost, "/v1/join/answer", token, gin.H{"value": "not an option"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(t, http.MethodPost, "/v1/join/retry", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestJoinWithoutTeamsIsRetryable(t *testing.T) {
	e := newEnv(t)
	token := e.session(t)

	s := joinAs(t, e, token, "Kim")
	require.Equal(t, quiz.StateResult, s.State)
	require.True(t, s.Retryable)
	require.NotEmpty(t, s.Error)

	e.team(t, "Panda", true)
	w := e.do(t, http.MethodPost, "/v1/join/retry", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/v1/join?wait=1", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	s = decodeSnapshot(t, w)
	require.Empty(t, s.Error)
	require.Equal(t, "Panda", s.Team.Name)
}

func TestAdminTeamsAndParticipants(t *testing.T) {
	e := newEnv(t)
	fox := e.team(t, "Fox", true)
	e.team(t, "Tiger", true)
	e.team(t, "Bear", false)

	w := e.do(t, http.MethodPost, "/v1/admin/teams", "", roster.TeamCreate{Name: "Fox", Batch: 1})
	require.Equal(t, http.StatusConflict, w.Code)

	w = e.do(t, http.MethodGet, "/v1/admin/teams?batch=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var teams struct {
		Teams []roster.Team `json:"teams"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &teams))
	require.Len(t, teams.Teams, 2)

	w = e.do(t, http.MethodGet, "/v1/admin/teams?batch=1&include_inactive=true", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &teams))
	require.Len(t, teams.Teams, 3)

	w = e.do(t, http.MethodGet, "/v1/admin/teams?batch=zero", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	p, err := e.repo.Create(context.Background(), roster.ParticipantCreate{Name: "Kim", Team: "Fox", Batch: 1})
	require.NoError(t, err)

	w = e.do(t, http.MethodPatch, "/v1/admin/participants/"+p.ID, "", gin.H{"team": "Bear"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = e.do(t, http.MethodPatch, "/v1/admin/participants/"+p.ID, "", gin.H{"team": "Nowhere"})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = e.do(t, http.MethodPatch, "/v1/admin/participants/"+p.ID, "", gin.H{"team": "Tiger"})
	require.Equal(t, http.StatusOK, w.Code)
	var moved roster.Participant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &moved))
	require.Equal(t, "Tiger", moved.Team)
	require.True(t, p.RegisteredAt.Equal(moved.RegisteredAt))

	w = e.do(t, http.MethodGet, "/v1/admin/summary?batch=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		Teams []roster.TeamCount `json:"teams"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	require.Len(t, sum.Teams, 2)
	require.Equal(t, "Tiger", sum.Teams[0].Name)
	require.Equal(t, 1, sum.Teams[0].Count)
	require.Equal(t, "Fox", sum.Teams[1].Name)

	w = e.do(t, http.MethodPatch, "/v1/admin/teams/"+fox.ID, "", gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodDelete, "/v1/admin/participants/"+p.ID, "", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/v1/admin/participants/"+p.ID, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodDelete, "/v1/admin/teams/"+fox.ID, "", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(t, http.MethodGet, "/v1/admin/teams/"+fox.ID, "", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBoardAndQR(t *testing.T) {
	e := newEnv(t)
	e.team(t, "Fox", true)

	w := e.do(t, http.MethodGet, "/v1/board", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var b board.Board
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
	require.Equal(t, 1, b.Batch)
	require.Len(t, b.Teams, 1)

	w = e.do(t, http.MethodGet, "/qr.png?size=128", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = e.do(t, http.MethodGet, "/qr.png?size=5000", "", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPromptStreamAndBoardSocket(t *testing.T) {
	e := newEnv(t)
	e.team(t, "Fox", true)
	token := e.session(t)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v1/join/prompt", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "event:frame")
	require.Contains(t, string(body), "data:W\n")
	require.Contains(t, string(body), "event:done\ndata:name")

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/board/ws?batch=1", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var b board.Board
	require.NoError(t, conn.ReadJSON(&b))
	require.Len(t, b.Teams, 1)
}
