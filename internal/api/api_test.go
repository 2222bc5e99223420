package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/portraitquiz/internal/api"
	"github.com/MrWong99/portraitquiz/internal/health"
	"github.com/MrWong99/portraitquiz/internal/quiz"
	"github.com/MrWong99/portraitquiz/internal/sampler"
	"github.com/MrWong99/portraitquiz/pkg/catalog"
	"github.com/MrWong99/portraitquiz/pkg/catalog/mock"
)

func character(id int, name string) catalog.Character {
	return catalog.Character{
		ID:       id,
		Name:     name,
		ImageURL: fmt.Sprintf("https://img.example/%d.png", id),
		Films:    []string{"Film"},
		Allies:   []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"},
	}
}

type fixture struct {
	srv     *httptest.Server
	api     *api.Server
	games   *quiz.Manager
	fetcher *mock.Fetcher
}

func newFixture(t *testing.T, setup ...func(*mock.Fetcher)) *fixture {
	t.Helper()
	f := &mock.Fetcher{Collections: map[string][]catalog.Character{
		"The Lion King": {character(1, "Simba")},
		"Frozen":        {character(2, "Elsa"), character(3, "Anna")},
	}}
	for _, fn := range setup {
		fn(f)
	}
	games := quiz.NewManager(func() *sampler.Sampler {
		return sampler.New(f, sampler.WithRand(rand.New(rand.NewPCG(1, 2))))
	})
	s := api.New(api.Config{
		Games:      games,
		Categories: []string{"Frozen", "The Lion King"},
		Bundled:    []string{"Cars", "Frozen"},
		Health:     health.New(),
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "metrics")
		}),
	})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, api: s, games: games, fetcher: f}
}

func (fx *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, fx.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func (fx *fixture) create(t *testing.T, filter string) string {
	t.Helper()
	resp, data := fx.do(t, http.MethodPost, "/api/games", map[string]string{"filter": filter})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, data)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.ID == "" {
		t.Fatalf("create body %s: %v", data, err)
	}
	return out.ID
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}

type errResp struct {
	Error string `json:"error"`
}

func TestCategories_MergesBundled(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	resp, data := fx.do(t, http.MethodGet, "/api/categories", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	got := decode[map[string][]string](t, data)["categories"]
	want := []string{"Frozen", "The Lion King", "Cars"}
	if !slices.Equal(got, want) {
		t.Errorf("categories = %v, want %v", got, want)
	}

	fx.api.SetCategories([]string{"Moana"})
	if got := fx.api.Categories(); !slices.Equal(got, []string{"Moana", "Cars", "Frozen"}) {
		t.Errorf("after SetCategories = %v", got)
	}
}

func TestGameFlow(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	id := fx.create(t, "The Lion King")

	resp, data := fx.do(t, http.MethodPost, "/api/games/"+id+"/guess", map[string]string{"transcript": "simba"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("guess before next status = %d, body %s", resp.StatusCode, data)
	}

	resp, data = fx.do(t, http.MethodPost, "/api/games/"+id+"/next", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next status = %d, body %s", resp.StatusCode, data)
	}
	if strings.Contains(string(data), "Simba") {
		t.Errorf("round reveals the name: %s", data)
	}
	round := decode[struct {
		Number    int `json:"number"`
		Character struct {
			ID       int    `json:"id"`
			ImageURL string `json:"image_url"`
		} `json:"character"`
	}](t, data)
	if round.Number != 1 || round.Character.ID != 1 || round.Character.ImageURL == "" {
		t.Errorf("round = %+v", round)
	}

	resp, data = fx.do(t, http.MethodPost, "/api/games/"+id+"/guess", map[string]string{"transcript": "It's Symba!"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("guess status = %d, body %s", resp.StatusCode, data)
	}
	res := decode[struct {
		IsMatch  bool   `json:"is_match"`
		Tier     string `json:"tier"`
		Answer   string `json:"answer"`
		Score    int    `json:"score"`
		Attempts int    `json:"attempts"`
	}](t, data)
	if !res.IsMatch || res.Answer != "Simba" || res.Score != 1 || res.Attempts != 1 || res.Tier == "" {
		t.Errorf("result = %+v", res)
	}

	resp, data = fx.do(t, http.MethodPost, "/api/games/"+id+"/guess", map[string]string{"transcript": "simba"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second guess status = %d", resp.StatusCode)
	}
	if e := decode[errResp](t, data); e.Error != quiz.ErrAlreadyAnswered.Error() {
		t.Errorf("second guess error = %q", e.Error)
	}

	resp, data = fx.do(t, http.MethodGet, "/api/games/"+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status = %d", resp.StatusCode)
	}
	st := decode[struct {
		ID       string `json:"id"`
		Filter   string `json:"filter"`
		Score    int    `json:"score"`
		Attempts int    `json:"attempts"`
		Rounds   int    `json:"rounds"`
	}](t, data)
	if st.ID != id || st.Filter != "The Lion King" || st.Score != 1 || st.Attempts != 1 || st.Rounds != 1 {
		t.Errorf("stats = %+v", st)
	}

	resp, _ = fx.do(t, http.MethodPost, "/api/games/"+id+"/skip", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("skip status = %d", resp.StatusCode)
	}
}

func TestSetFilter(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	id := fx.create(t, "")

	resp, data := fx.do(t, http.MethodPut, "/api/games/"+id+"/filter", map[string]string{"filter": "Frozen"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, data)
	}
	if got := decode[map[string]any](t, data)["filter"]; got != "Frozen" {
		t.Errorf("filter = %v", got)
	}

	resp, _ = fx.do(t, http.MethodPost, "/api/games/"+id+"/next", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next status = %d", resp.StatusCode)
	}
	for _, c := range fx.fetcher.Calls() {
		if c.Filter != "Frozen" {
			t.Errorf("fetch call with filter %q", c.Filter)
		}
	}
}

func TestNext_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty category", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		id := fx.create(t, "Atlantis")
		resp, data := fx.do(t, http.MethodPost, "/api/games/"+id+"/next", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		if e := decode[errResp](t, data); e.Error != "no characters found for this category" {
			t.Errorf("error = %q", e.Error)
		}
	})

	t.Run("transport", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t, func(f *mock.Fetcher) { f.Err = &catalog.StatusError{Code: 503} })
		id := fx.create(t, "Frozen")
		resp, _ := fx.do(t, http.MethodPost, "/api/games/"+id+"/next", nil)
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", resp.StatusCode)
		}
	})

	t.Run("unknown game", func(t *testing.T) {
		t.Parallel()
		fx := newFixture(t)
		for _, path := range []string{"/api/games/nope", "/api/games/nope/next"} {
			method := http.MethodGet
			if strings.HasSuffix(path, "next") {
				method = http.MethodPost
			}
			resp, _ := fx.do(t, method, path, nil)
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("%s status = %d", path, resp.StatusCode)
			}
		}
	})
}

func TestDeleteGame(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	id := fx.create(t, "Frozen")

	resp, _ := fx.do(t, http.MethodDelete, "/api/games/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp, _ = fx.do(t, http.MethodDelete, "/api/games/"+id, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", resp.StatusCode)
	}
	if fx.games.Len() != 0 {
		t.Errorf("Len = %d", fx.games.Len())
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantMatch  bool
		wantTier   string
	}{
		{"containment", `{"transcript":"I think it's Elsa","target":"Elsa"}`, 200, true, "containment"},
		{"miss", `{"transcript":"simon","target":"Simba"}`, 200, false, "none"},
		{"custom threshold", `{"transcript":"simon","target":"Simba","threshold":0.6}`, 200, true, "edit_distance"},
		{"bad threshold", `{"transcript":"a","target":"b","threshold":1.5}`, 400, false, ""},
		{"unknown field", `{"transcript":"a","target":"b","extra":1}`, 400, false, ""},
		{"malformed", `{"transcript":`, 400, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Post(fx.srv.URL+"/api/verify", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			var v struct {
				IsMatch    bool    `json:"is_match"`
				Confidence float64 `json:"confidence"`
				Tier       string  `json:"tier"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
				t.Fatal(err)
			}
			if v.IsMatch != tc.wantMatch || v.Tier != tc.wantTier {
				t.Errorf("verdict = %+v, want match=%v tier=%s", v, tc.wantMatch, tc.wantTier)
			}
		})
	}
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	for path, want := range map[string]int{"/healthz": 200, "/readyz": 200, "/metrics": 200} {
		resp, _ := fx.do(t, http.MethodGet, path, nil)
		if resp.StatusCode != want {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func TestStatusForWrappedErrors(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, func(f *mock.Fetcher) {
		f.Err = fmt.Errorf("mirror: %w", errors.Join(catalog.ErrTransport, context.DeadlineExceeded))
	})
	id := fx.create(t, "Frozen")
	resp, data := fx.do(t, http.MethodPost, "/api/games/"+id+"/next", nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, body %s", resp.StatusCode, data)
	}
}
