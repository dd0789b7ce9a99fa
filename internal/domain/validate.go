package domain

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// ValidateAccount checks the fields the client requires before setup.
func ValidateAccount(a Account) error {
	return structError(validate.Struct(a))
}

// ValidateEntry checks leg shape and the per-currency balance invariant.
func ValidateEntry(e Entry) error {
	if err := structError(validate.Struct(e)); err != nil {
		return err
	}
	return CheckBalance(e.DebitLegs, e.CreditLegs)
}

// CheckBalance groups legs by currency and requires the debit and credit
// sums to match within every group. Currencies are never netted against
// each other.
func CheckBalance(debits, credits []JournalLeg) error {
	type totals struct{ debit, credit decimal.Decimal }
	byCurrency := make(map[string]*totals)
	add := func(leg JournalLeg, debit bool) {
		t, ok := byCurrency[leg.Currency]
		if !ok {
			t = &totals{}
			byCurrency[leg.Currency] = t
		}
		amount := decimal.NewFromInt(leg.Amount)
		if debit {
			t.debit = t.debit.Add(amount)
		} else {
			t.credit = t.credit.Add(amount)
		}
	}
	for _, leg := range debits {
		add(leg, true)
	}
	for _, leg := range credits {
		add(leg, false)
	}

	currencies := make([]string, 0, len(byCurrency))
	for c := range byCurrency {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)

	for _, c := range currencies {
		t := byCurrency[c]
		if !t.debit.Equal(t.credit) {
			return &BalanceInvariantViolation{Currency: c, Debits: t.debit, Credits: t.credit}
		}
	}
	return nil
}

// ValidateRefill checks a refill instruction.
func ValidateRefill(source string, accounts []RefillAccount) error {
	if strings.TrimSpace(source) == "" {
		return &ValidationError{Field: "source_of_funds_account_code", Message: "is required"}
	}
	if len(accounts) == 0 {
		return &ValidationError{Field: "accounts_to_refill", Message: "at least one account is required"}
	}
	for i, acc := range accounts {
		if err := structError(validate.Struct(acc)); err != nil {
			return fmt.Errorf("accounts_to_refill[%d]: %w", i, err)
		}
	}
	return nil
}

// ValidateTimeout requires a positive reservation window.
func ValidateTimeout(seconds int) error {
	if seconds <= 0 {
		return &ValidationError{Field: "timeout_seconds", Message: "must be positive"}
	}
	return nil
}

func structError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	fe := verrs[0]
	return &ValidationError{Field: fieldPath(fe), Message: describe(fe)}
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be positive"
	case "min":
		return fmt.Sprintf("needs at least %s item(s)", fe.Param())
	case "datetime":
		return fmt.Sprintf("must be a date in %s form", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
