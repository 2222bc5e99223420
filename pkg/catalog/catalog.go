// Package catalog defines the character records served by the remote
// collection and the Fetcher interface the sampling engine consumes.
//
// A [Character] is an immutable record. Its quality is derived, not stored:
// [Character.Valid] reports whether it carries an image, at least one film
// appearance, and a [PopularityScore] of at least [MinPopularityScore].
//
// The remote collection is paginated. A [Page] is one response unit: zero or
// more characters plus the total page count for the requested filter.
// Implementations of [Fetcher] must honour context cancellation.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// MinPopularityScore is the lowest popularity score a valid character may have.
	MinPopularityScore = 10

	// BrowsePageSize is the page size used when sampling without a filter.
	BrowsePageSize = 50

	// FilteredPageSize is the page size used when building a filtered pool.
	FilteredPageSize = 200
)

// ErrTransport marks failures reaching the collection source: network
// errors, non-success HTTP statuses, undecodable bodies, or an open circuit.
// Context cancellation is never reported as ErrTransport.
var ErrTransport = errors.New("catalog: transport error")

// StatusError is returned when the collection source answers with a
// non-success status code. It unwraps to [ErrTransport].
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: unexpected status %d", e.Code)
}

// Unwrap lets errors.Is(err, ErrTransport) match status failures.
func (e *StatusError) Unwrap() error { return ErrTransport }

// Character is one entry of the remote collection.
type Character struct {
	ID              int      `json:"_id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	ImageURL        string   `json:"imageUrl" yaml:"image_url"`
	Films           []string `json:"films" yaml:"films"`
	ShortFilms      []string `json:"shortFilms" yaml:"short_films"`
	TVShows         []string `json:"tvShows" yaml:"tv_shows"`
	VideoGames      []string `json:"videoGames" yaml:"video_games"`
	ParkAttractions []string `json:"parkAttractions" yaml:"park_attractions"`
	Allies          []string `json:"allies" yaml:"allies"`
	Enemies         []string `json:"enemies" yaml:"enemies"`
	SourceURL       string   `json:"sourceUrl,omitempty" yaml:"source_url"`
	URL             string   `json:"url,omitempty" yaml:"url"`
}

// PopularityScore is the total number of memberships across every list the
// character appears in.
func PopularityScore(c Character) int {
	return len(c.Films) +
		len(c.ShortFilms) +
		len(c.TVShows) +
		len(c.VideoGames) +
		len(c.ParkAttractions) +
		len(c.Allies) +
		len(c.Enemies)
}

// Valid reports whether c is good enough to be shown in a quiz round.
func (c Character) Valid() bool {
	return c.ImageURL != "" && len(c.Films) > 0 && PopularityScore(c) >= MinPopularityScore
}

// FilterValid returns the valid characters of cs in their original order.
// The input slice is not modified.
func FilterValid(cs []Character) []Character {
	out := make([]Character, 0, len(cs))
	for _, c := range cs {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// PageInfo is the pagination metadata of a [Page].
type PageInfo struct {
	Count        int    `json:"count"`
	TotalPages   int    `json:"totalPages"`
	PreviousPage string `json:"previousPage"`
	NextPage     string `json:"nextPage"`
}

// Page is a single response of the collection source.
type Page struct {
	Info       PageInfo
	Characters []Character
}

// UnmarshalJSON decodes a collection response. The source returns "data" as a
// single object when exactly one record matches and as an array otherwise;
// both shapes are normalised into Characters.
func (p *Page) UnmarshalJSON(b []byte) error {
	var raw struct {
		Info PageInfo        `json:"info"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Info = raw.Info
	p.Characters = []Character{}

	data := bytes.TrimSpace(raw.Data)
	switch {
	case len(data) == 0 || string(data) == "null":
	case data[0] == '[':
		if err := json.Unmarshal(data, &p.Characters); err != nil {
			return fmt.Errorf("catalog: decode data array: %w", err)
		}
	case data[0] == '{':
		var c Character
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("catalog: decode data object: %w", err)
		}
		p.Characters = append(p.Characters, c)
	default:
		return fmt.Errorf("catalog: unexpected data payload %q", truncate(data, 32))
	}
	return nil
}

// MarshalJSON encodes the page in the source's wire shape (data as an array).
func (p Page) MarshalJSON() ([]byte, error) {
	chars := p.Characters
	if chars == nil {
		chars = []Character{}
	}
	return json.Marshal(struct {
		Info PageInfo    `json:"info"`
		Data []Character `json:"data"`
	}{Info: p.Info, Data: chars})
}

// Fetcher retrieves pages of the remote collection.
//
// filter is an exact category name; the empty string means "all". page is
// 1-based. Implementations must return promptly once ctx is cancelled and
// must report transport failures wrapped in [ErrTransport].
type Fetcher interface {
	FetchPage(ctx context.Context, filter string, page, pageSize int) (*Page, error)
}

// FetcherFunc adapts an ordinary function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, filter string, page, pageSize int) (*Page, error)

// FetchPage calls f.
func (f FetcherFunc) FetchPage(ctx context.Context, filter string, page, pageSize int) (*Page, error) {
	return f(ctx, filter, page, pageSize)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "…"
}
