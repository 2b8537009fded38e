package model

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
)

// TestParseFormatRoundTrip: кодек идентификаторов двусторонний.
func TestParseFormatRoundTrip(t *testing.T) {
	id := uuid.New()

	parsed, err := ParseUID(FormatUID(id))
	if err != nil {
		t.Fatalf("ParseUID ошибка: %v", err)
	}
	if parsed != id {
		t.Errorf("ParseUID(FormatUID(id)) = %v, ожидался %v", parsed, id)
	}
}

// TestIsUID различает UUID и произвольные строки.
func TestIsUID(t *testing.T) {
	if !IsUID(uuid.New().String()) {
		t.Error("IsUID(валидный UUID) = false")
	}
	for _, s := range []string{"", "v1.0", "master", "not-a-uuid"} {
		if IsUID(s) {
			t.Errorf("IsUID(%q) = true, ожидался false", s)
		}
	}
}

// TestIssueClean: UUID переводятся в строки, бинарные вложения — в base64,
// опциональные поля без значения опускаются.
func TestIssueClean(t *testing.T) {
	revID := uuid.New()
	parent := uuid.New()
	commentRev := uuid.New()
	scribble := []byte{1, 2, 3}

	issue := &Issue{
		ID:      uuid.New(),
		Account: "acc",
		Project: "proj",
		Name:    "трещина",
		Number:  3,
		Created: 1000,
		Owner:   "alice",
		RevID:   &revID,
		Parent:  &parent,
		Comments: []Comment{
			{Owner: "bob", Comment: "x", Created: 2000, RevID: &commentRev},
			{Owner: "alice", Comment: "y", Created: 3000, Sealed: true},
		},
		Scribble: scribble,
	}

	c := issue.Clean()

	if c.ID != issue.ID.String() {
		t.Errorf("ID = %q, ожидался %q", c.ID, issue.ID.String())
	}
	if c.RevID != revID.String() || c.Parent != parent.String() {
		t.Errorf("RevID/Parent = %q/%q", c.RevID, c.Parent)
	}
	if c.ClosedTime != nil {
		t.Errorf("ClosedTime = %v, ожидался nil", *c.ClosedTime)
	}
	if len(c.Comments) != 2 {
		t.Fatalf("len(Comments) = %d, ожидался 2", len(c.Comments))
	}
	if c.Comments[0].RevID != commentRev.String() {
		t.Errorf("Comments[0].RevID = %q", c.Comments[0].RevID)
	}
	if c.Comments[1].RevID != "" || !c.Comments[1].Sealed {
		t.Errorf("Comments[1] = %+v", c.Comments[1])
	}
	if c.Scribble != base64.StdEncoding.EncodeToString(scribble) {
		t.Errorf("Scribble = %q", c.Scribble)
	}
	if c.Screenshot != "" {
		t.Errorf("Screenshot = %q, ожидалась пустая строка", c.Screenshot)
	}
}

// TestIssueClean_EmptyComments: пустой поток комментариев сериализуется
// как пустой массив, а не null.
func TestIssueClean_EmptyComments(t *testing.T) {
	c := (&Issue{ID: uuid.New()}).Clean()
	if c.Comments == nil {
		t.Error("Comments = nil, ожидался пустой срез")
	}
}
