package api_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizbot/internal/admin"
	"github.com/victornm/quizbot/internal/api"
	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/game"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/question"
	"github.com/victornm/quizbot/internal/schedule"
	"github.com/victornm/quizbot/internal/score"
	"github.com/victornm/quizbot/internal/storage/memory"
	"github.com/victornm/quizbot/internal/user"
)

const (
	adminToken = "s3cret"
	authToken  = "twilio-token"
)

var now = time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC)

type fixture struct {
	engine    *gin.Engine
	users     *user.Repository
	questions *question.Service
}

func makeAPI(t *testing.T, opts ...func(c *api.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memory.NewStore()
	eb := event.NewBus()
	t.Cleanup(eb.Stop)
	clock := func() time.Time { return now }

	f := &fixture{
		engine:    gin.New(),
		users:     user.NewRepository(user.Config{Store: st}),
		questions: question.NewService(question.Config{Store: st, IntN: func(int) int { return 0 }}),
	}
	_, err := f.questions.Seed(context.Background(), []domain.Question{
		{ID: "q1", Text: "Capital of France?", Options: []string{"Paris", "Rome"}, Answer: "Paris"},
	})
	require.NoError(t, err)

	lb := leaderboard.NewService(leaderboard.Config{EventBus: eb, Users: f.users, Store: st, Now: clock})
	sc := score.NewService(score.Config{Users: f.users, Now: clock})
	jobs, err := schedule.New(schedule.Config{Jobs: schedule.StandardJobs(schedule.DefaultSpecs(), lb, sc)})
	require.NoError(t, err)

	c := api.Config{
		Engine: f.engine,
		Game: game.NewService(game.Config{
			EventBus: eb,
			Users:    f.users,
			Engine:   game.NewEngine(game.EngineConfig{Questions: f.questions}),
			Now:      clock,
		}),
		Admin: admin.NewService(admin.Config{
			EventBus:  eb,
			Questions: f.questions,
			Users:     f.users,
		}),
		Leaderboard: lb,
		Jobs:        jobs,
		AdminToken:  adminToken,
	}
	for _, opt := range opts {
		opt(&c)
	}
	api.New(c)

	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func webhookRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "http://bot.example.com/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAPI_Health(t *testing.T) {
	f := makeAPI(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "WhatsApp Quiz Bot API is running.", w.Body.String())
}

func TestAPI_WhatsAppWebhook(t *testing.T) {
	f := makeAPI(t)

	w := f.do(webhookRequest(url.Values{
		"From":        {"whatsapp:+919741092786"},
		"Body":        {"hello"},
		"ProfileName": {"Asha"},
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/xml")
	assert.Contains(t, w.Body.String(), "<Response>")
	assert.Contains(t, w.Body.String(), "<Message>")
	assert.Contains(t, w.Body.String(), "Capital of France?")

	u, err := f.users.Get(context.Background(), "+919741092786")
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.Name)
	require.NotNil(t, u.CurrentQuestion)
}

func TestAPI_WhatsAppWebhook_Signature(t *testing.T) {
	form := url.Values{
		"From": {"whatsapp:+919741092786"},
		"Body": {"hello"},
	}

	tests := map[string]struct {
		signature string
		wantCode  int
	}{
		"valid signature is accepted":  {signature: sign(authToken, "http://bot.example.com/webhook/whatsapp", form), wantCode: http.StatusOK},
		"forged signature is rejected": {signature: sign("other", "http://bot.example.com/webhook/whatsapp", form), wantCode: http.StatusForbidden},
		"missing signature is rejected": {signature: "", wantCode: http.StatusForbidden},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			f := makeAPI(t, func(c *api.Config) {
				c.Twilio = api.TwilioConfig{AuthToken: authToken, ValidateSignature: true}
			})

			req := webhookRequest(form)
			req.Header.Set("X-Twilio-Signature", tt.signature)

			w := f.do(req)
			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestAPI_ManualTriggers(t *testing.T) {
	f := makeAPI(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/daily_leaderboard", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No daily scores yet.", w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/weekly_leaderboard", nil))
	assert.Equal(t, "No scores yet.", w.Body.String())

	u := domain.NewUserState("+1")
	u.Name, u.Score, u.DailyScores = "Asha", 3, map[string]int{"2026-10-18": 2}
	require.NoError(t, f.users.Save(context.Background(), u))

	w = f.do(httptest.NewRequest(http.MethodGet, "/daily_leaderboard", nil))
	assert.Equal(t, "Daily leaderboard sent & logged.", w.Body.String())

	w = f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/daily/2026-10-18", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var lb domain.Leaderboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &lb))
	assert.Equal(t, []domain.LeaderboardEntry{{Rank: 1, UserID: "+1", Name: "Asha", Score: 2}}, lb.Entries)

	w = f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/weekly/2026-W01", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/leaderboard/monthly/2026-10", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Admin(t *testing.T) {
	type inputs struct {
		method, path, body, token string
	}

	tests := map[string]struct {
		arrange func(f *fixture) inputs
		assert  func(t *testing.T, f *fixture, w *httptest.ResponseRecorder)
	}{
		"missing token is unauthorized": {
			arrange: func(*fixture) inputs {
				return inputs{method: http.MethodDelete, path: "/admin/remove_question/q1"}
			},

			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusUnauthorized, w.Code)
				_, err := f.questions.Get(context.Background(), "q1")
				assert.NoError(t, err, "question should still exist")
			},
		},

		"add question returns the new id": {
			arrange: func(*fixture) inputs {
				return inputs{
					method: http.MethodPost, path: "/admin/add_question", token: adminToken,
					body: `{"question": "2 + 2?", "options": ["3", "4"], "answer": "4"}`,
				}
			},

			assert: func(t *testing.T, f *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, w.Code)
				var resp struct {
					Message string `json:"message"`
					ID      string `json:"id"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "Question added", resp.Message)

				q, err := f.questions.Get(context.Background(), resp.ID)
				require.NoError(t, err)
				assert.Equal(t, "2 + 2?", q.Text)
			},
		},

		"add question with missing fields is a bad request": {
			arrange: func(*fixture) inputs {
				return inputs{method: http.MethodPost, path: "/admin/add_question", token: adminToken, body: `{"question": "2 + 2?"}`}
			},

			assert: func(t *testing.T, _ *fixture, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			},
		},

		"remove missing question is not found": {
			arrange: func(*fixture) inputs {
				return inputs{method: http.MethodDelete, path: "/admin/remove_question/nope", token: adminToken}
			},

			assert: func(t *testing.T, _ *fixture, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, w.Code)
				assert.JSONEq(t, `{"error": "question not found: id=nope"}`, w.Body.String())
			},
		},

		"update number of unknown user is not found": {
			arrange: func(*fixture) inputs {
				return inputs{method: http.MethodPost, path: "/admin/update_user_number/+9", token: adminToken, body: `{"wa_number": "whatsapp:+9"}`}
			},

			assert: func(t *testing.T, _ *fixture, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusNotFound, w.Code)
			},
		},

		"update number without number is a bad request": {
			arrange: func(f *fixture) inputs {
				require.NoError(t, f.users.Save(context.Background(), domain.NewUserState("+1")))
				return inputs{method: http.MethodPost, path: "/admin/update_user_number/+1", token: adminToken, body: `{}`}
			},

			assert: func(t *testing.T, _ *fixture, w *httptest.ResponseRecorder) {
				assert.Equal(t, http.StatusBadRequest, w.Code)
				assert.JSONEq(t, `{"error": "missing wa_number"}`, w.Body.String())
			},
		},

		"broadcast reports the number of recipients": {
			arrange: func(f *fixture) inputs {
				u := domain.NewUserState("+1")
				u.Address = "whatsapp:+1"
				require.NoError(t, f.users.Save(context.Background(), u))
				return inputs{method: http.MethodPost, path: "/admin/broadcast", token: adminToken, body: `{"message": "hi all"}`}
			},

			assert: func(t *testing.T, _ *fixture, w *httptest.ResponseRecorder) {
				require.Equal(t, http.StatusOK, w.Code)
				assert.JSONEq(t, `{"message": "Broadcast queued", "recipients": 1}`, w.Body.String())
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			f := makeAPI(t)
			in := tt.arrange(f)

			req := httptest.NewRequest(in.method, in.path, strings.NewReader(in.body))
			req.Header.Set("Content-Type", "application/json")
			if in.token != "" {
				req.Header.Set("X-Admin-Token", in.token)
			}

			tt.assert(t, f, f.do(req))
		})
	}
}

// sign computes a Twilio request signature.
func sign(token, u string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(u)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
