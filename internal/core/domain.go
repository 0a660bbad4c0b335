package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const (
	// Monthly is the only frequency the recurrence engine currently supports.
	Monthly Frequency = "monthly"
)

type (
	// Kind classifies a transaction as money coming in or going out.
	Kind string

	// Frequency is the cadence of a recurrence rule.
	Frequency string

	// Money is a currency-agnostic amount in cents.
	Money struct {
		Cents int64
	}

	// Transaction is a single financial event owned by a user.
	Transaction struct {
		ID          string
		Description string
		Amount      Money
		Kind        Kind
		Category    string
		Timestamp   time.Time
		OwnerID     string
	}

	// RecurrenceRule is a template the materializer turns into one concrete
	// transaction per month. LastFulfilled is written only by the
	// materializer; a zero value means the rule has never fired.
	RecurrenceRule struct {
		ID            string
		Description   string
		Amount        Money
		Kind          Kind
		Category      string
		DayOfMonth    int
		Frequency     Frequency
		Active        bool
		CreatedAt     time.Time
		LastFulfilled time.Time
		OwnerID       string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidKind      = errors.New("invalid transaction kind")
	ErrInvalidDay       = errors.New("day of month out of range")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidTarget    = errors.New("invalid goal target")
	ErrEmptyName        = errors.New("empty goal name")
	ErrUnknownGoalKind  = errors.New("unknown goal kind")
)

// SuggestedCategories is the closed suggestion set offered by transaction
// forms. It is advisory only; free-text categories are accepted.
var SuggestedCategories = []string{
	"Salário",
	"Alimentação",
	"Moradia",
	"Transporte",
	"Saúde",
	"Educação",
	"Lazer",
	"Investimentos",
	"Outros",
}

func (k Kind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if t.Timestamp.IsZero() {
		return errors.New("timestamp cannot be zero")
	}
	return nil
}

func (r RecurrenceRule) Validate() error {
	if len(strings.TrimSpace(r.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if err := r.Kind.Validate(); err != nil {
		return err
	}
	if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
		return ErrInvalidDay
	}
	if r.Frequency != Monthly {
		return ErrInvalidFrequency
	}
	return nil
}
