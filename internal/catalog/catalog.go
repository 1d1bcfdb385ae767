/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package catalog serves the static theme, word, and question content.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
)

// Random is the theme selection that asks for a uniformly random theme.
const Random = "Random"

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

type Style string

const (
	StyleYours    Style = "yours"
	StyleYouAreIt Style = "youAreIt"
)

type QuestionType string

const (
	HotSeat  QuestionType = "hotSeat"
	Physical QuestionType = "physical"
)

// Format is how players answer a physical question.
type Format string

const (
	Thumbs  Format = "thumbs"
	Fingers Format = "fingers"
	Stand   Format = "stand"
	Point   Format = "point"
)

type Info struct {
	Name         string `json:"name"`
	NameHindi    string `json:"nameHindi"`
	Tagline      string `json:"tagline"`
	TaglineHindi string `json:"taglineHindi"`
	Version      string `json:"version"`
}

type FormatInfo struct {
	Name              string `json:"name"`
	NameHindi         string `json:"nameHindi"`
	Instructions      string `json:"instructions"`
	InstructionsHindi string `json:"instructionsHindi"`
}

type Question struct {
	Type          QuestionType `json:"type"`
	Question      string       `json:"question"`
	QuestionHindi string       `json:"questionHindi"`
	Format        Format       `json:"format,omitempty"`
}

type Word struct {
	Word      string     `json:"word"`
	WordHindi string     `json:"wordHindi"`
	Questions []Question `json:"questions"`
}

type Theme struct {
	ID         int        `json:"id"`
	Name       string     `json:"name"`
	NameHindi  string     `json:"nameHindi"`
	Difficulty Difficulty `json:"difficulty"`
	Style      Style      `json:"style"`
	StyleHindi string     `json:"styleHindi"`
	Words      []Word     `json:"words"`
}

// Catalog is read-only after Load returns, so it is safe for concurrent use.
type Catalog struct {
	Info            Info                  `json:"gameInfo"`
	PhysicalFormats map[Format]FormatInfo `json:"physicalFormats"`
	Themes          []Theme               `json:"themes"`

	byName map[string]int
}

var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed data/rustam-game-data.json
var defaultData []byte

// Default returns the catalog bundled with the binary.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultData))
	if err != nil {
		panic("bundled catalog: " + err.Error())
	}
	return c
}

// LoadFile reads a catalog from path, falling back to the bundled one when
// path is empty.
func LoadFile(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Load(f)
}

func Load(r io.Reader) (*Catalog, error) {
	var c Catalog

	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	c.byName = make(map[string]int, len(c.Themes))
	for i, t := range c.Themes {
		c.byName[t.Name] = i
	}

	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Themes) == 0 {
		return fmt.Errorf("%w: no themes", ErrInvalidCatalog)
	}

	seen := make(map[string]bool, len(c.Themes))
	for _, t := range c.Themes {
		switch {
		case t.Name == "":
			return fmt.Errorf("%w: theme %d has no name", ErrInvalidCatalog, t.ID)
		case t.Name == Random:
			return fmt.Errorf("%w: %q is reserved", ErrInvalidCatalog, Random)
		case seen[t.Name]:
			return fmt.Errorf("%w: duplicate theme %q", ErrInvalidCatalog, t.Name)
		case len(t.Words) == 0:
			return fmt.Errorf("%w: theme %q has no words", ErrInvalidCatalog, t.Name)
		}
		seen[t.Name] = true

		switch t.Difficulty {
		case Easy, Medium, Hard:
		default:
			return fmt.Errorf("%w: theme %q has difficulty %q", ErrInvalidCatalog, t.Name, t.Difficulty)
		}

		for _, w := range t.Words {
			if w.Word == "" || len(w.Questions) == 0 {
				return fmt.Errorf("%w: theme %q has an empty word", ErrInvalidCatalog, t.Name)
			}

			for _, q := range w.Questions {
				switch q.Type {
				case HotSeat:
				case Physical:
					if _, ok := c.PhysicalFormats[q.Format]; !ok {
						return fmt.Errorf("%w: %q uses unknown format %q", ErrInvalidCatalog, w.Word, q.Format)
					}
				default:
					return fmt.Errorf("%w: %q has question type %q", ErrInvalidCatalog, w.Word, q.Type)
				}
			}
		}
	}

	return nil
}

func (c *Catalog) ThemeNames() []string {
	names := make([]string, len(c.Themes))
	for i, t := range c.Themes {
		names[i] = t.Name
	}
	return names
}

func (c *Catalog) ThemeByName(name string) (Theme, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Theme{}, false
	}
	return c.Themes[i], true
}

// RandomWord picks one of the theme's words uniformly.
func (c *Catalog) RandomWord(themeName string) (Word, bool) {
	t, ok := c.ThemeByName(themeName)
	if !ok || len(t.Words) == 0 {
		return Word{}, false
	}
	return t.Words[rand.IntN(len(t.Words))], true
}

// QuestionsForWord never fails; unknown themes or words yield no questions.
func (c *Catalog) QuestionsForWord(themeName, word string) []Question {
	t, ok := c.ThemeByName(themeName)
	if !ok {
		return []Question{}
	}

	for _, w := range t.Words {
		if w.Word == word {
			out := make([]Question, len(w.Questions))
			copy(out, w.Questions)
			return out
		}
	}

	return []Question{}
}

// RandomQuestions returns up to n of the word's questions in random order.
func (c *Catalog) RandomQuestions(themeName, word string, n int) []Question {
	qs := Shuffle(c.QuestionsForWord(themeName, word))
	return qs[:max(0, min(n, len(qs)))]
}

func (c *Catalog) PhysicalFormat(f Format) (FormatInfo, bool) {
	info, ok := c.PhysicalFormats[f]
	return info, ok
}

// ThemeForRound cycles through the themes in catalog order, with round 1
// mapping to the first theme. Any integer maps to a valid theme.
func (c *Catalog) ThemeForRound(round int) string {
	return c.Themes[cycleIndex(round, len(c.Themes))].Name
}

func cycleIndex(round, n int) int {
	return ((round-1)%n + n) % n
}

func (c *Catalog) RandomTheme() string {
	return c.Themes[rand.IntN(len(c.Themes))].Name
}

// Resolve turns a host's theme selection into a concrete theme name. An
// empty selection follows the round rotation; Random picks uniformly.
func (c *Catalog) Resolve(selection string, round int) (string, bool) {
	switch selection {
	case "":
		return c.ThemeForRound(round), true
	case Random:
		return c.RandomTheme(), true
	}

	if _, ok := c.ThemeByName(selection); !ok {
		return "", false
	}
	return selection, true
}

// Shuffle returns a uniformly shuffled copy of xs (Fisher-Yates). The input
// is left untouched.
func Shuffle[T any](xs []T) []T {
	out := make([]T, len(xs))
	copy(out, xs)

	for i := len(out) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		out[i], out[j] = out[j], out[i]
	}

	return out
}
