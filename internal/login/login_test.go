package login

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/pchat/internal/store"
)

type memDirectory map[string]*store.Person

func (m memDirectory) GetPerson(id string) (*store.Person, error) {
	return m[id], nil
}

func (m memDirectory) UpsertPerson(p *store.Person) error {
	cp := *p
	m[p.ObjectID] = &cp
	return nil
}

// capture records the code handed out by the dev verifier.
type capture struct {
	number string
	code   string
}

func newFlow(dir memDirectory) (*Flow, *capture) {
	c := &capture{}
	v := NewDevVerifier(func(number, code string) {
		c.number, c.code = number, code
	})
	return NewFlow(v, dir, nil), c
}

func TestCanProceedOnlyWithNumber(t *testing.T) {
	f, _ := newFlow(memDirectory{})
	if f.CanProceed() {
		t.Error("CanProceed() = true with empty number")
	}
	f.SetPhone("5")
	if !f.CanProceed() {
		t.Error("CanProceed() = false with a number")
	}
	f.SetPhone("")
	if f.CanProceed() {
		t.Error("CanProceed() = true after clearing the number")
	}
}

func TestNumberUsesDialCode(t *testing.T) {
	f, _ := newFlow(memDirectory{})
	f.SelectCountry(Country{Name: "Brazil", Code: "BR", DialCode: "+55"})
	f.SetPhone(" (11) 98765-4321 ")
	if got := f.Number(); got != "+5511987654321" {
		t.Errorf("Number() = %q, want +5511987654321", got)
	}
}

func TestRequestCodeRejectsInvalidPhone(t *testing.T) {
	for _, phone := range []string{"", "12", "12ab5678", "1234567890123456"} {
		f, c := newFlow(memDirectory{})
		f.SetPhone(phone)
		if err := f.RequestCode(context.Background()); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("RequestCode(%q) error = %v, want ErrInvalidPhone", phone, err)
		}
		if c.code != "" || f.AwaitingCode() {
			t.Errorf("RequestCode(%q) issued a code", phone)
		}
	}
}

func TestVerifyCreatesMissingPerson(t *testing.T) {
	dir := memDirectory{}
	f, c := newFlow(dir)
	f.SetPhone("5551234")

	if err := f.RequestCode(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.number != "+15551234" || len(c.code) != 6 {
		t.Fatalf("notified %q with code %q", c.number, c.code)
	}
	if !f.AwaitingCode() {
		t.Fatal("AwaitingCode() = false after request")
	}

	p, err := f.Verify(context.Background(), c.code)
	if err != nil {
		t.Fatal(err)
	}
	if p.ObjectID != UserID("+15551234") || p.Phone != "+15551234" || p.Country != "US" {
		t.Errorf("person = %+v", p)
	}
	if dir[p.ObjectID] == nil {
		t.Error("person not stored")
	}
	if f.AwaitingCode() {
		t.Error("AwaitingCode() = true after sign-in")
	}

	if err := f.Rename(p, "  Maria Souza "); err != nil {
		t.Fatal(err)
	}
	if dir[p.ObjectID].Fullname != "Maria Souza" {
		t.Errorf("stored name = %q", dir[p.ObjectID].Fullname)
	}
}

func TestVerifyLoadsExistingPerson(t *testing.T) {
	id := UserID("+15551234")
	dir := memDirectory{id: {ObjectID: id, Fullname: "Ann Lee", Phone: "+15551234"}}
	f, c := newFlow(dir)
	f.SetPhone("555-1234")
	if err := f.RequestCode(context.Background()); err != nil {
		t.Fatal(err)
	}
	p, err := f.Verify(context.Background(), c.code)
	if err != nil {
		t.Fatal(err)
	}
	if p.Fullname != "Ann Lee" {
		t.Errorf("person = %+v, want existing record", p)
	}
}

func TestVerifyWrongCode(t *testing.T) {
	f, c := newFlow(memDirectory{})
	if _, err := f.Verify(context.Background(), "000000"); !errors.Is(err, ErrNoCode) {
		t.Errorf("Verify before request error = %v, want ErrNoCode", err)
	}

	f.SetPhone("5551234")
	if err := f.RequestCode(context.Background()); err != nil {
		t.Fatal(err)
	}
	wrong := "000000"
	if c.code == wrong {
		wrong = "111111"
	}
	if _, err := f.Verify(context.Background(), wrong); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("error = %v, want ErrInvalidCode", err)
	}
	// A wrong code does not burn the attempt.
	if _, err := f.Verify(context.Background(), c.code); err != nil {
		t.Errorf("retry with the right code: %v", err)
	}
}

func TestUserIDIsStable(t *testing.T) {
	if UserID("+15551234") != UserID("+15551234") {
		t.Error("UserID not deterministic")
	}
	if UserID("+15551234") == UserID("+15551235") {
		t.Error("different numbers share a user id")
	}
}
