package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/recap/internal/auth"
	"github.com/sakif/recap/internal/handler"
	"github.com/sakif/recap/internal/repository/sqlite"
	"github.com/sakif/recap/internal/service"
	"github.com/sakif/recap/internal/summarizer"
)

// MockGenerator returns a canned summarizer result without any network.
type MockGenerator struct {
	ReturnRes *summarizer.Result
	ReturnErr error
	Calls     int
}

func (m *MockGenerator) Generate(_ context.Context, _ string, _ summarizer.SourceInfo) (*summarizer.Result, error) {
	m.Calls++
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

// testAPI is a full stack — router, auth gate, services, in-memory store —
// with only the external model API faked out.
type testAPI struct {
	router *chi.Mux
	db     *sqlite.DB
	gen    *MockGenerator
	tokens *auth.TokenService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	passwords := auth.NewPasswordServiceForTest(4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gen := &MockGenerator{
		ReturnRes: &summarizer.Result{
			Title:       "Generated Title",
			KeyPoints:   []string{"first", "second"},
			FullSummary: "The generated summary.",
		},
	}

	authService := service.NewAuthService(db, tokens, passwords, logger)
	summaryService := service.NewSummaryService(db, db, gen, logger)

	authHandler := handler.NewAuthHandler(authService, nil, logger)
	summaryHandler := handler.NewSummaryHandler(summaryService, logger)

	// Same route table as production wiring, minus the OAuth routes
	r := chi.NewRouter()
	r.Post("/auth/signup", authHandler.HandleSignup)
	r.Post("/auth/signin", authHandler.HandleSignin)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens, db, logger))
		r.Get("/auth/me", authHandler.HandleMe)
		r.Route("/summary", func(r chi.Router) {
			r.Post("/generate", summaryHandler.HandleGenerate)
			r.Get("/", summaryHandler.HandleList)
			r.Post("/save", summaryHandler.HandleSave)
			r.Get("/{id}", summaryHandler.HandleGet)
			r.Delete("/{id}", summaryHandler.HandleDelete)
		})
	})

	return &testAPI{router: r, db: db, gen: gen, tokens: tokens}
}

// do performs a request against the router. An empty token means anonymous.
func (api *testAPI) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)
	return rr
}

// signup registers a fresh user through the real endpoint and returns their
// token.
func (api *testAPI) signup(t *testing.T, email string) string {
	t.Helper()

	rr := api.do(t, http.MethodPost, "/auth/signup", "",
		`{"email":"`+email+`","name":"Test User","password":"password123"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("signup failed: status %d, body %s", rr.Code, rr.Body.String())
	}

	var res struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decoding signup response: %v", err)
	}
	return res.Data.Token
}

// envelope decodes the standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decoding envelope: %v (body: %s)", err, rr.Body.String())
	}
	return env
}

func TestSummaryAPI_Generate(t *testing.T) {
	t.Run("requires authentication", func(t *testing.T) {
		api := newTestAPI(t)

		rr := api.do(t, http.MethodPost, "/summary/generate", "",
			`{"videoRef":"vid-1","content":"transcript"}`)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, 0, api.gen.Calls)
	})

	t.Run("fresh generation", func(t *testing.T) {
		api := newTestAPI(t)
		token := api.signup(t, "gen@example.com")

		rr := api.do(t, http.MethodPost, "/summary/generate", token,
			`{"videoRef":"vid-1","title":"My Video","content":"the transcript"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		env := decodeEnvelope(t, rr)
		assert.True(t, env.Success)

		var data struct {
			Summary struct {
				ID          string   `json:"id"`
				Title       string   `json:"title"`
				KeyPoints   []string `json:"keyPoints"`
				FullSummary string   `json:"fullSummary"`
			} `json:"summary"`
			Cached           bool `json:"cached"`
			RemainingCredits int  `json:"remainingCredits"`
		}
		assert.NoError(t, json.Unmarshal(env.Data, &data))
		assert.False(t, data.Cached)
		assert.Equal(t, 9, data.RemainingCredits)
		assert.Equal(t, "Generated Title", data.Summary.Title)
		assert.Len(t, data.Summary.KeyPoints, 2)
		assert.NotEmpty(t, data.Summary.ID)
		assert.Equal(t, 1, api.gen.Calls)
	})

	t.Run("cache hit is free for another user", func(t *testing.T) {
		api := newTestAPI(t)
		aliceToken := api.signup(t, "alice@example.com")
		bobToken := api.signup(t, "bob@example.com")

		first := api.do(t, http.MethodPost, "/summary/generate", aliceToken,
			`{"videoRef":"shared","content":"transcript"}`)
		assert.Equal(t, http.StatusCreated, first.Code)

		second := api.do(t, http.MethodPost, "/summary/generate", bobToken,
			`{"videoRef":"shared","content":"transcript"}`)
		assert.Equal(t, http.StatusOK, second.Code)

		var data struct {
			Cached           bool `json:"cached"`
			RemainingCredits int  `json:"remainingCredits"`
		}
		env := decodeEnvelope(t, second)
		assert.NoError(t, json.Unmarshal(env.Data, &data))
		assert.True(t, data.Cached)
		assert.Equal(t, 10, data.RemainingCredits, "cache hits must not charge")
		assert.Equal(t, 1, api.gen.Calls, "cache hit must not reach the model API")
	})

	t.Run("exhausted credits", func(t *testing.T) {
		api := newTestAPI(t)
		token := api.signup(t, "broke@example.com")

		// Burn the whole signup grant on distinct videos
		for i := 0; i < 10; i++ {
			rr := api.do(t, http.MethodPost, "/summary/generate", token,
				`{"videoRef":"vid-`+string(rune('a'+i))+`","content":"transcript"}`)
			assert.Equal(t, http.StatusCreated, rr.Code)
		}

		rr := api.do(t, http.MethodPost, "/summary/generate", token,
			`{"videoRef":"vid-eleventh","content":"transcript"}`)

		assert.Equal(t, http.StatusForbidden, rr.Code)
		env := decodeEnvelope(t, rr)
		assert.False(t, env.Success)
		assert.Equal(t, "insufficient_credits", env.Error)
		assert.Equal(t, 10, api.gen.Calls, "a broke user must not trigger a model call")
	})

	t.Run("invalid JSON body", func(t *testing.T) {
		api := newTestAPI(t)
		token := api.signup(t, "bad@example.com")

		rr := api.do(t, http.MethodPost, "/summary/generate", token, `{"videoRef":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing content", func(t *testing.T) {
		api := newTestAPI(t)
		token := api.signup(t, "empty@example.com")

		rr := api.do(t, http.MethodPost, "/summary/generate", token, `{"videoRef":"vid-1"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		env := decodeEnvelope(t, rr)
		assert.Equal(t, "validation_error", env.Error)
	})
}

func TestSummaryAPI_ListGetDelete(t *testing.T) {
	api := newTestAPI(t)
	aliceToken := api.signup(t, "alice@example.com")
	bobToken := api.signup(t, "bob@example.com")

	// Alice saves one summary (the free path)
	saveRR := api.do(t, http.MethodPost, "/summary/save", aliceToken,
		`{"videoRef":"vid-1","title":"Saved","keyPoints":["kp"],"fullSummary":"text"}`)
	assert.Equal(t, http.StatusCreated, saveRR.Code)

	var saved struct {
		ID string `json:"id"`
	}
	env := decodeEnvelope(t, saveRR)
	assert.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.NotEmpty(t, saved.ID)

	t.Run("list shows own summaries", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/summary", aliceToken, "")
		assert.Equal(t, http.StatusOK, rr.Code)

		var data struct {
			Summaries []json.RawMessage `json:"summaries"`
			Total     int               `json:"total"`
			Page      int               `json:"page"`
		}
		env := decodeEnvelope(t, rr)
		assert.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, 1, data.Total)
		assert.Len(t, data.Summaries, 1)
		assert.Equal(t, 1, data.Page)
	})

	t.Run("list is empty for other users", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/summary", bobToken, "")
		assert.Equal(t, http.StatusOK, rr.Code)

		var data struct {
			Total int `json:"total"`
		}
		env := decodeEnvelope(t, rr)
		assert.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, 0, data.Total)
	})

	t.Run("get own summary", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/summary/"+saved.ID, aliceToken, "")
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("get someone else's summary looks nonexistent", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/summary/"+saved.ID, bobToken, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)

		// Same status and error type as an id that never existed —
		// non-owners learn nothing
		ghost := api.do(t, http.MethodGet, "/summary/no-such-id", bobToken, "")
		assert.Equal(t, http.StatusNotFound, ghost.Code)
		assert.Equal(t, "not_found", decodeEnvelope(t, ghost).Error)
		assert.Equal(t, "not_found", decodeEnvelope(t, rr).Error)
	})

	t.Run("delete someone else's summary fails", func(t *testing.T) {
		rr := api.do(t, http.MethodDelete, "/summary/"+saved.ID, bobToken, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("delete own summary", func(t *testing.T) {
		rr := api.do(t, http.MethodDelete, "/summary/"+saved.ID, aliceToken, "")
		assert.Equal(t, http.StatusOK, rr.Code)

		gone := api.do(t, http.MethodGet, "/summary/"+saved.ID, aliceToken, "")
		assert.Equal(t, http.StatusNotFound, gone.Code)
	})
}
