package svc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"lyricbox/pkg/domain"

	"golang.org/x/text/unicode/norm"
)

const (
	maxName     = 40
	maxAnswer   = 500
	maxArtist   = 80
	maxSong     = 120
	maxLyric    = 500
	maxPromptID = 64
)

// clean NFC-normalises s, drops control characters other than newlines and
// tabs, and trims surrounding space.
func clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// clip cuts s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

func field(p *string, n int) string {
	if p == nil {
		return ""
	}
	return clip(clean(*p), n)
}

// PromptID normalises a board tag, falling back to the default board.
func PromptID(raw string) string {
	id := clip(clean(raw), maxPromptID)
	if id == "" {
		return domain.DefaultPromptID
	}
	return id
}

func displayName(p *string) string {
	if n := field(p, maxName); n != "" {
		return n
	}
	return domain.AnonymousName
}

// payload selects the entry shape from the fields that carry a value. An
// answer wins when both shapes are supplied.
func (b *Board) payload(answer, artist, song, lyric *string) (domain.Payload, error) {
	if a := field(answer, maxAnswer); a != "" {
		return domain.Answer{Text: a}, nil
	}
	ar, so, ly := field(artist, maxArtist), field(song, maxSong), field(lyric, maxLyric)
	if ar == "" && so == "" && ly == "" {
		return nil, domain.Validation("answer required")
	}
	if _, ok := b.artists[ar]; !ok {
		return nil, domain.Validation("artist required")
	}
	if so == "" {
		return nil, domain.Validation("song required")
	}
	if ly == "" {
		return nil, domain.Validation("lyric required")
	}
	return domain.Lyric{Artist: ar, Song: so, Lyric: ly}, nil
}
