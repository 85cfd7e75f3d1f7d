package domain

import (
	"encoding/json"
	"time"
)

const (
	DefaultPromptID = "default"
	AnonymousName   = "anonymous"
)

type Kind string

const (
	KindAnswer Kind = "answer"
	KindLyric  Kind = "lyric"
)

// Payload is the body of an entry: either an Answer or a Lyric. The kind is
// chosen when the entry is created and never changes afterwards.
type Payload interface {
	Kind() Kind
}

type Answer struct {
	Text string
}

func (Answer) Kind() Kind { return KindAnswer }

type Lyric struct {
	Artist string
	Song   string
	Lyric  string
}

func (Lyric) Kind() Kind { return KindLyric }

type Entry struct {
	ID            string
	PromptID      string
	Name          string
	Payload       Payload
	CreatedAt     time.Time
	UpdatedAt     *time.Time
	DeleteKeyHash string
}

// record is the stored shape of an entry.
type record struct {
	ID            string     `json:"id"`
	PromptID      string     `json:"promptId"`
	Name          string     `json:"name"`
	Answer        string     `json:"answer,omitempty"`
	Artist        string     `json:"artist,omitempty"`
	Song          string     `json:"song,omitempty"`
	Lyric         string     `json:"lyric,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
	DeleteKeyHash string     `json:"deleteKeyHash"`
}

// View is the public projection of an entry. It never carries the hash.
type View struct {
	ID        string     `json:"id"`
	PromptID  string     `json:"promptId"`
	Name      string     `json:"name"`
	Answer    string     `json:"answer,omitempty"`
	Artist    string     `json:"artist,omitempty"`
	Song      string     `json:"song,omitempty"`
	Lyric     string     `json:"lyric,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Created is returned once, from Create, and is the only place the raw
// delete key ever appears.
type Created struct {
	View
	DeleteKey string `json:"deleteKey"`
}

func (e *Entry) Kind() Kind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}

func (e *Entry) toRecord() record {
	r := record{
		ID:            e.ID,
		PromptID:      e.PromptID,
		Name:          e.Name,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		DeleteKeyHash: e.DeleteKeyHash,
	}
	switch p := e.Payload.(type) {
	case Answer:
		r.Answer = p.Text
	case Lyric:
		r.Artist = p.Artist
		r.Song = p.Song
		r.Lyric = p.Lyric
	}
	return r
}

// Marshal produces the string stored in the list.
func (e *Entry) Marshal() (string, error) {
	b, err := json.Marshal(e.toRecord())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (e *Entry) View() View {
	r := e.toRecord()
	return View{
		ID:        r.ID,
		PromptID:  r.PromptID,
		Name:      r.Name,
		Answer:    r.Answer,
		Artist:    r.Artist,
		Song:      r.Song,
		Lyric:     r.Lyric,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ParseEntry projects a stored string into an Entry. Anything that is not
// valid JSON, lacks an id or hash, or does not carry exactly one payload
// shape is reported as absent.
func ParseEntry(raw string) (*Entry, bool) {
	var r record
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false
	}
	if r.ID == "" || r.DeleteKeyHash == "" {
		return nil, false
	}
	hasAnswer := r.Answer != ""
	hasLyric := r.Artist != "" || r.Song != "" || r.Lyric != ""
	var p Payload
	switch {
	case hasAnswer && !hasLyric:
		p = Answer{Text: r.Answer}
	case hasLyric && !hasAnswer:
		if r.Artist == "" || r.Song == "" || r.Lyric == "" {
			return nil, false
		}
		p = Lyric{Artist: r.Artist, Song: r.Song, Lyric: r.Lyric}
	default:
		return nil, false
	}
	if r.PromptID == "" {
		r.PromptID = DefaultPromptID
	}
	if r.Name == "" {
		r.Name = AnonymousName
	}
	return &Entry{
		ID:            r.ID,
		PromptID:      r.PromptID,
		Name:          r.Name,
		Payload:       p,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		DeleteKeyHash: r.DeleteKeyHash,
	}, true
}
