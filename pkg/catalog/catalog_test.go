package catalog_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/portraitquiz/pkg/catalog"
)

func makeCharacter(id int, films, others int) catalog.Character {
	c := catalog.Character{
		ID:       id,
		Name:     fmt.Sprintf("Character %d", id),
		ImageURL: fmt.Sprintf("https://img.example/%d.png", id),
	}
	for i := 0; i < films; i++ {
		c.Films = append(c.Films, fmt.Sprintf("Film %d", i))
	}
	for i := 0; i < others; i++ {
		c.TVShows = append(c.TVShows, fmt.Sprintf("Show %d", i))
	}
	return c
}

func TestPopularityScore_CountsEveryList(t *testing.T) {
	t.Parallel()

	c := catalog.Character{
		Films:           []string{"a", "b"},
		ShortFilms:      []string{"c"},
		TVShows:         []string{"d"},
		VideoGames:      []string{"e", "f"},
		ParkAttractions: []string{"g"},
		Allies:          []string{"h"},
		Enemies:         []string{"i", "j", "k"},
	}
	if got := catalog.PopularityScore(c); got != 11 {
		t.Errorf("PopularityScore = %d, want 11", got)
	}
}

func TestCharacter_Valid(t *testing.T) {
	t.Parallel()

	noImage := makeCharacter(2, 3, 10)
	noImage.ImageURL = ""

	tests := []struct {
		name string
		c    catalog.Character
		want bool
	}{
		{"valid at threshold", makeCharacter(1, 1, 9), true},
		{"valid above threshold", makeCharacter(1, 4, 20), true},
		{"score below threshold", makeCharacter(1, 1, 8), false},
		{"no films", makeCharacter(1, 0, 15), false},
		{"no image", noImage, false},
		{"zero value", catalog.Character{}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.c.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v (score %d)", got, tc.want, catalog.PopularityScore(tc.c))
			}
		})
	}
}

func TestFilterValid_KeepsOrderAndGate(t *testing.T) {
	t.Parallel()

	in := []catalog.Character{
		makeCharacter(1, 2, 10),
		makeCharacter(2, 0, 10),
		makeCharacter(3, 1, 9),
		makeCharacter(4, 1, 1),
	}
	got := catalog.FilterValid(in)
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Fatalf("FilterValid ids = %v, want [1 3]", ids(got))
	}
	for _, c := range got {
		if catalog.PopularityScore(c) < catalog.MinPopularityScore || len(c.Films) == 0 || c.ImageURL == "" {
			t.Errorf("invalid character %d leaked through", c.ID)
		}
	}
	if len(in) != 4 {
		t.Errorf("input mutated: len = %d", len(in))
	}
}

func TestPage_UnmarshalArray(t *testing.T) {
	t.Parallel()

	body := `{
		"info": {"count": 2, "totalPages": 7, "previousPage": null, "nextPage": "x"},
		"data": [
			{"_id": 10, "name": "Simba", "imageUrl": "i", "films": ["The Lion King"]},
			{"_id": 11, "name": "Nala", "imageUrl": "j", "films": []}
		]
	}`
	var p catalog.Page
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Info.TotalPages != 7 {
		t.Errorf("TotalPages = %d, want 7", p.Info.TotalPages)
	}
	if len(p.Characters) != 2 || p.Characters[0].Name != "Simba" || p.Characters[1].ID != 11 {
		t.Errorf("Characters = %+v", p.Characters)
	}
}

func TestPage_UnmarshalSingleObject(t *testing.T) {
	t.Parallel()

	body := `{"info": {"count": 1, "totalPages": 1}, "data": {"_id": 42, "name": "Elsa", "films": ["Frozen"]}}`
	var p catalog.Page
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(p.Characters) != 1 || p.Characters[0].ID != 42 {
		t.Fatalf("Characters = %+v, want one record with id 42", p.Characters)
	}
}

func TestPage_UnmarshalEmptyData(t *testing.T) {
	t.Parallel()

	for _, body := range []string{
		`{"info": {"totalPages": 0}, "data": []}`,
		`{"info": {"totalPages": 0}, "data": null}`,
		`{"info": {"totalPages": 0}}`,
	} {
		var p catalog.Page
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			t.Fatalf("Unmarshal(%s): %v", body, err)
		}
		if p.Characters == nil || len(p.Characters) != 0 {
			t.Errorf("Unmarshal(%s): Characters = %#v, want empty non-nil slice", body, p.Characters)
		}
	}
}

func TestPage_UnmarshalRejectsScalarData(t *testing.T) {
	t.Parallel()

	var p catalog.Page
	if err := json.Unmarshal([]byte(`{"info": {}, "data": 5}`), &p); err == nil {
		t.Fatal("expected error for scalar data payload")
	}
}

func TestPage_MarshalUsesArrayShape(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(catalog.Page{Info: catalog.PageInfo{TotalPages: 3}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back catalog.Page
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Info.TotalPages != 3 || len(back.Characters) != 0 {
		t.Errorf("round trip = %+v", back)
	}
}

func TestStatusError_IsTransport(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("wrapped: %w", &catalog.StatusError{Code: 503})
	if !errors.Is(err, catalog.ErrTransport) {
		t.Error("StatusError should match ErrTransport")
	}
	var se *catalog.StatusError
	if !errors.As(err, &se) || se.Code != 503 {
		t.Errorf("errors.As: got %+v", se)
	}
}

func ids(cs []catalog.Character) []int {
	out := make([]int, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}
