package domain

import (
	"strings"
	"testing"
	"time"
)

func TestEntryMarshalParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{
		ID:            "lq3k2-abc",
		PromptID:      "p1",
		Name:          "robin",
		Payload:       Lyric{Artist: "Gum-9", Song: "X", Lyric: "Y"},
		CreatedAt:     now,
		DeleteKeyHash: strings.Repeat("a", 64),
	}
	raw, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, ok := ParseEntry(raw)
	if !ok {
		t.Fatalf("ParseEntry rejected %s", raw)
	}
	if got.Kind() != KindLyric {
		t.Errorf("Kind = %q, want lyric", got.Kind())
	}
	if got.Payload.(Lyric).Song != "X" {
		t.Errorf("song lost in round trip")
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if got.UpdatedAt != nil {
		t.Errorf("UpdatedAt should be absent on a fresh entry")
	}
}

func TestParseEntrySkipsInvalid(t *testing.T) {
	hash := strings.Repeat("b", 64)
	cases := map[string]string{
		"not json":        "{{nope",
		"no id":           `{"answer":"a","deleteKeyHash":"` + hash + `"}`,
		"no hash":         `{"id":"1","answer":"a"}`,
		"no payload":      `{"id":"1","deleteKeyHash":"` + hash + `"}`,
		"both shapes":     `{"id":"1","answer":"a","artist":"Gum-9","song":"s","lyric":"l","deleteKeyHash":"` + hash + `"}`,
		"partial lyric":   `{"id":"1","artist":"Gum-9","song":"s","deleteKeyHash":"` + hash + `"}`,
		"array not entry": `[1,2,3]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, ok := ParseEntry(raw); ok {
				t.Errorf("ParseEntry accepted %s", raw)
			}
		})
	}
}

func TestParseEntryDefaults(t *testing.T) {
	raw := `{"id":"1","answer":"hello","deleteKeyHash":"` + strings.Repeat("c", 64) + `"}`
	e, ok := ParseEntry(raw)
	if !ok {
		t.Fatal("ParseEntry rejected a minimal answer")
	}
	if e.PromptID != DefaultPromptID {
		t.Errorf("PromptID = %q, want %q", e.PromptID, DefaultPromptID)
	}
	if e.Name != AnonymousName {
		t.Errorf("Name = %q, want %q", e.Name, AnonymousName)
	}
}

func TestViewOmitsHash(t *testing.T) {
	e := &Entry{ID: "1", PromptID: "p", Name: "n", Payload: Answer{Text: "a"}, DeleteKeyHash: "secret-hash"}
	v := e.View()
	if v.Answer != "a" || v.ID != "1" {
		t.Errorf("unexpected view %+v", v)
	}
	raw, _ := e.Marshal()
	if !strings.Contains(raw, "secret-hash") {
		t.Errorf("stored form must keep the hash")
	}
}

func TestStatusAndMessage(t *testing.T) {
	if Status(ErrInvalidKey) != 403 {
		t.Errorf("ErrInvalidKey status = %d", Status(ErrInvalidKey))
	}
	if Message(Validation("artist required")) != "artist required" {
		t.Errorf("validation message not passed through")
	}
	se := &StoreError{Op: "lrange", Msg: "WRONGTYPE", Status: 400}
	if Status(se) != 500 {
		t.Errorf("StoreError status = %d, want 500", Status(se))
	}
	if !strings.Contains(Message(se), "WRONGTYPE") {
		t.Errorf("store message not passed through: %s", Message(se))
	}
}
