package login

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number")
	ErrInvalidCode  = errors.New("invalid verification code")
	ErrNoCode       = errors.New("no verification code requested")
)

// Verifier proves ownership of a phone number.
type Verifier interface {
	// RequestCode sends a code to number and returns the id of the attempt.
	RequestCode(ctx context.Context, number string) (string, error)
	// SignIn exchanges a received code for the user id bound to the number.
	SignIn(ctx context.Context, verificationID, code string) (string, error)
}

// Directory loads and creates person records.
type Directory interface {
	GetPerson(id string) (*store.Person, error)
	UpsertPerson(p *store.Person) error
}

// Country is a selectable dial prefix.
type Country struct {
	Name     string
	Code     string
	DialCode string
}

// Countries offered by the login page; the first entry is the default.
var Countries = []Country{
	{Name: "United States", Code: "US", DialCode: "+1"},
	{Name: "Brazil", Code: "BR", DialCode: "+55"},
	{Name: "Canada", Code: "CA", DialCode: "+1"},
	{Name: "France", Code: "FR", DialCode: "+33"},
	{Name: "Germany", Code: "DE", DialCode: "+49"},
	{Name: "India", Code: "IN", DialCode: "+91"},
	{Name: "Italy", Code: "IT", DialCode: "+39"},
	{Name: "Japan", Code: "JP", DialCode: "+81"},
	{Name: "Mexico", Code: "MX", DialCode: "+52"},
	{Name: "Portugal", Code: "PT", DialCode: "+351"},
	{Name: "Spain", Code: "ES", DialCode: "+34"},
	{Name: "United Kingdom", Code: "GB", DialCode: "+44"},
}

// Flow walks through phone sign-in: number entry, code request, code
// verification and loading (or creating) the signed-in person.
type Flow struct {
	verifier Verifier
	dir      Directory
	logger   *zap.Logger

	country        Country
	phone          string
	verificationID string
}

func NewFlow(v Verifier, dir Directory, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{verifier: v, dir: dir, logger: logger, country: Countries[0]}
}

func (f *Flow) Country() Country { return f.country }

// SelectCountry changes the dial prefix. A pending code request is dropped.
func (f *Flow) SelectCountry(c Country) {
	f.country = c
	f.verificationID = ""
}

// SetPhone records the number as typed, without the dial prefix.
func (f *Flow) SetPhone(phone string) {
	f.phone = phone
	f.verificationID = ""
}

// CanProceed reports whether the "Next" action is available.
func (f *Flow) CanProceed() bool {
	return f.phone != ""
}

// Number returns the full international number.
func (f *Flow) Number() string {
	return f.country.DialCode + normalize(f.phone)
}

// AwaitingCode reports whether a code was requested and not yet verified.
func (f *Flow) AwaitingCode() bool {
	return f.verificationID != ""
}

// RequestCode asks the verifier to send a code to the current number.
func (f *Flow) RequestCode(ctx context.Context) error {
	digits := normalize(f.phone)
	if len(digits) < 4 || len(digits) > 15 || strings.IndexFunc(digits, notDigit) >= 0 {
		return ErrInvalidPhone
	}
	id, err := f.verifier.RequestCode(ctx, f.Number())
	if err != nil {
		return fmt.Errorf("request code: %w", err)
	}
	f.verificationID = id
	f.logger.Info("verification code requested", zap.String("country", f.country.Code))
	return nil
}

// Verify signs in with code and returns the person of the signed-in user.
// A user without a directory entry gets one holding the phone number.
func (f *Flow) Verify(ctx context.Context, code string) (*store.Person, error) {
	if f.verificationID == "" {
		return nil, ErrNoCode
	}
	userID, err := f.verifier.SignIn(ctx, f.verificationID, strings.TrimSpace(code))
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	f.verificationID = ""

	p, err := f.dir.GetPerson(userID)
	if err != nil {
		return nil, fmt.Errorf("load person: %w", err)
	}
	if p != nil {
		f.logger.Info("signed in", zap.String("user_id", userID))
		return p, nil
	}

	p = &store.Person{ObjectID: userID, Phone: f.Number(), Country: f.country.Code}
	if err := f.dir.UpsertPerson(p); err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	f.logger.Info("signed in, person created", zap.String("user_id", userID))
	return p, nil
}

// normalize strips the separators people type into phone numbers.
func normalize(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

func notDigit(r rune) bool { return !unicode.IsDigit(r) }

// Rename stores the display name chosen after the first sign-in.
func (f *Flow) Rename(p *store.Person, fullname string) error {
	fullname = strings.TrimSpace(fullname)
	if fullname == "" || fullname == p.Fullname {
		return nil
	}
	p.Fullname = fullname
	if err := f.dir.UpsertPerson(p); err != nil {
		return fmt.Errorf("rename person: %w", err)
	}
	return nil
}
