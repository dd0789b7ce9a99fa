// Package sandbox is an in-memory ledger engine speaking the book-keeper
// HTTP contract. It backs local development and the client's tests; it is
// not durable.
package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/bookkeeper/internal/domain"
	"github.com/punchamoorthee/bookkeeper/internal/models"
)

// DefaultPendingTimeout applies to pending entries submitted without
// timeout_seconds.
const DefaultPendingTimeout = time.Hour

// Kind is the resource an entry was submitted through.
type Kind int

const (
	KindJournalEntry Kind = iota
	KindCompoundTransfer
	KindPendingJournalEntry
	KindPendingCompoundTransfer
	KindReversal
	KindRefill
	KindCloseSweep
)

func (k Kind) pending() bool {
	return k == KindPendingJournalEntry || k == KindPendingCompoundTransfer
}

// Error carries the HTTP status the engine answers with.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func fail(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

// Outcome is a serialized answer, stored for idempotent replay.
type Outcome struct {
	Status int
	Body   json.RawMessage
}

type journalState string

const (
	statePosted    journalState = "posted"
	statePending   journalState = "pending"
	stateCommitted journalState = "committed"
	stateVoided    journalState = "voided"
	stateExpired   journalState = "expired"
)

type journal struct {
	id          string
	kind        Kind
	state       journalState
	debits      []domain.JournalLeg
	credits     []domain.JournalLeg
	entryDate   string
	narration   string
	createdAt   time.Time
	expiresAt   time.Time
	reverses    string
	correctedBy string
}

func (j *journal) posted() bool {
	return j.state == statePosted || j.state == stateCommitted
}

type totals struct {
	debitsPosted, creditsPosted   int64
	debitsPending, creditsPending int64
}

type account struct {
	domain.Account
	closed   bool
	balances map[string]*totals
}

func (a *account) totals(currency string) *totals {
	t, ok := a.balances[currency]
	if !ok {
		t = &totals{}
		a.balances[currency] = t
	}
	return t
}

// debitNormal accounts grow with debits.
func (a *account) debitNormal() bool {
	return a.Type == domain.AccountTypeAsset || a.Type == domain.AccountTypeExpense
}

type tenant struct {
	accounts map[string]*account
	journals map[string]*journal
	keys     map[string]models.IdempotencyRecord
}

// Engine holds every tenant's ledger behind one lock, so concurrent
// commit/void/expiry on the same entry always resolve to a single winner.
type Engine struct {
	mu      sync.Mutex
	now     func() time.Time
	newID   func() string
	tenants map[string]*tenant
}

type Option func(*Engine)

// WithClock replaces the clock that drives pending-entry expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:     time.Now,
		newID:   uuid.NewString,
		tenants: make(map[string]*tenant),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) tenant(id string) (*tenant, error) {
	if id == "" {
		return nil, fail(http.StatusBadRequest, "tenant_id is required")
	}
	t, ok := e.tenants[id]
	if !ok {
		t = &tenant{
			accounts: make(map[string]*account),
			journals: make(map[string]*journal),
			keys:     make(map[string]models.IdempotencyRecord),
		}
		e.tenants[id] = t
	}
	return t, nil
}

// CreateAccounts registers accounts. Re-creating an existing code is a
// no-op, which makes setup safe to repeat.
func (e *Engine) CreateAccounts(req models.CreateAccountsRequest) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(req.TenantID)
	if err != nil {
		return 0, err
	}
	for _, acc := range req.Accounts {
		if acc.Code == "" {
			return 0, fail(http.StatusBadRequest, "account code is required")
		}
	}
	created := 0
	for _, acc := range req.Accounts {
		if _, exists := t.accounts[acc.Code]; exists {
			continue
		}
		t.accounts[acc.Code] = &account{Account: acc, balances: make(map[string]*totals)}
		created++
	}
	return created, nil
}

// SubmitEntry handles every entry-creating resource. reqHash fingerprints
// the request so a reused key with a different payload is refused.
func (e *Engine) SubmitEntry(kind Kind, req models.EntryRequest, reqHash string) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(req.TenantID)
	if err != nil {
		return Outcome{}, err
	}
	now := e.now()
	e.expireDue(t, now)

	// 1. Idempotency check. Replays answer 200 with the stored body.
	if req.IdempotencyKey != "" {
		if rec, ok := t.keys[req.IdempotencyKey]; ok {
			if rec.RequestHash != reqHash {
				return Outcome{}, fail(http.StatusUnprocessableEntity, "idempotency key reused with a different payload")
			}
			return Outcome{Status: http.StatusOK, Body: rec.ResponseBody}, nil
		}
	}

	// 2. Validation
	entry := domain.Entry{EntryDate: req.EntryDate, DebitLegs: req.DebitLegs, CreditLegs: req.CreditLegs}
	if err := domain.ValidateEntry(entry); err != nil {
		return Outcome{}, fail(http.StatusBadRequest, "%v", err)
	}

	// 3. Execution
	j := &journal{
		id:        e.newID(),
		kind:      kind,
		state:     statePosted,
		debits:    req.DebitLegs,
		credits:   req.CreditLegs,
		entryDate: req.EntryDate,
		narration: req.Narration,
		createdAt: now,
	}
	status := http.StatusCreated
	if kind.pending() {
		timeout := DefaultPendingTimeout
		if req.TimeoutSeconds > 0 {
			timeout = time.Duration(req.TimeoutSeconds) * time.Second
		}
		j.state = statePending
		j.expiresAt = now.Add(timeout)
		status = http.StatusAccepted
	}
	if err := e.apply(t, j); err != nil {
		return Outcome{}, err
	}
	t.journals[j.id] = j

	// 4. Finalize idempotency
	body, err := json.Marshal(models.JournalResponse{JournalID: models.JournalID(j.id), Status: string(j.state)})
	if err != nil {
		return Outcome{}, err
	}
	if req.IdempotencyKey != "" {
		t.keys[req.IdempotencyKey] = models.IdempotencyRecord{
			Key:            req.IdempotencyKey,
			RequestHash:    reqHash,
			ResponseBody:   body,
			ResponseStatus: status,
		}
	}
	return Outcome{Status: status, Body: body}, nil
}

// Resolve commits or voids a pending entry of the given kind.
func (e *Engine) Resolve(tenantID string, kind Kind, id string, commit bool) (domain.PendingState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(tenantID)
	if err != nil {
		return "", err
	}
	e.expireDue(t, e.now())

	j, ok := t.journals[id]
	if !ok || j.kind != kind {
		return "", fail(http.StatusNotFound, "pending entry %s not found", id)
	}
	switch j.state {
	case statePending:
	case stateExpired:
		return "", fail(http.StatusBadRequest, "pending entry %s expired", id)
	default:
		return "", fail(http.StatusConflict, "pending entry %s already %s", id, j.state)
	}

	for _, leg := range j.debits {
		tot := t.accounts[leg.AccountCode].totals(leg.Currency)
		tot.debitsPending -= leg.Amount
		if commit {
			tot.debitsPosted += leg.Amount
		}
	}
	for _, leg := range j.credits {
		tot := t.accounts[leg.AccountCode].totals(leg.Currency)
		tot.creditsPending -= leg.Amount
		if commit {
			tot.creditsPosted += leg.Amount
		}
	}
	if commit {
		j.state = stateCommitted
		return domain.PendingStateCommitted, nil
	}
	j.state = stateVoided
	return domain.PendingStateVoided, nil
}

// Refill credits each capped account from the source of funds in a single
// balanced posting.
func (e *Engine) Refill(req models.RefillRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(req.TenantID)
	if err != nil {
		return err
	}
	if err := domain.ValidateRefill(req.SourceOfFundsAccountCode, req.AccountsToRefill); err != nil {
		return fail(http.StatusBadRequest, "%v", err)
	}
	j := &journal{id: e.newID(), kind: KindRefill, state: statePosted, createdAt: e.now(), narration: "limiter refill"}
	for _, acc := range req.AccountsToRefill {
		j.debits = append(j.debits, domain.Leg(req.SourceOfFundsAccountCode, acc.Amount, acc.Currency))
		j.credits = append(j.credits, domain.Leg(acc.AccountCode, acc.Amount, acc.Currency))
	}
	if err := e.apply(t, j); err != nil {
		return err
	}
	t.journals[j.id] = j
	return nil
}

// Balances reports one record per account and currency, in request order.
// Unknown codes are skipped.
func (e *Engine) Balances(tenantID string, codes []string) ([]domain.BalanceRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(tenantID)
	if err != nil {
		return nil, err
	}
	e.expireDue(t, e.now())

	records := []domain.BalanceRecord{}
	for _, code := range codes {
		acc, ok := t.accounts[code]
		if !ok {
			continue
		}
		if len(acc.balances) == 0 {
			records = append(records, domain.BalanceRecord{AccountCode: code})
			continue
		}
		currencies := make([]string, 0, len(acc.balances))
		for currency := range acc.balances {
			currencies = append(currencies, currency)
		}
		sort.Strings(currencies)
		for _, currency := range currencies {
			tot := acc.balances[currency]
			records = append(records, domain.BalanceRecord{
				AccountCode:    code,
				Currency:       currency,
				Balance:        decimal.NewFromInt(acc.net(tot)),
				DebitsPosted:   decimal.NewFromInt(tot.debitsPosted),
				CreditsPosted:  decimal.NewFromInt(tot.creditsPosted),
				DebitsPending:  decimal.NewFromInt(tot.debitsPending),
				CreditsPending: decimal.NewFromInt(tot.creditsPending),
			})
		}
	}
	return records, nil
}

// Correct posts the mirror image of a posted entry. The original is left
// untouched apart from the back-reference.
func (e *Engine) Correct(tenantID, id string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(tenantID)
	if err != nil {
		return "", err
	}
	e.expireDue(t, e.now())

	orig, ok := t.journals[id]
	if !ok {
		return "", fail(http.StatusNotFound, "journal entry %s not found", id)
	}
	if !orig.posted() {
		return "", fail(http.StatusBadRequest, "journal entry %s is %s, only posted entries can be corrected", id, orig.state)
	}
	if orig.correctedBy != "" {
		return "", fail(http.StatusConflict, "journal entry %s already corrected by %s", id, orig.correctedBy)
	}

	rev := &journal{
		id:        e.newID(),
		kind:      KindReversal,
		state:     statePosted,
		debits:    orig.credits,
		credits:   orig.debits,
		entryDate: domain.EntryDateFor(e.now()),
		narration: "correction of " + id,
		createdAt: e.now(),
		reverses:  id,
	}
	if err := e.apply(t, rev); err != nil {
		return "", err
	}
	t.journals[rev.id] = rev
	orig.correctedBy = rev.id
	return rev.id, nil
}

// CloseAccount sweeps the balance held in currency to destination and
// closes the account.
func (e *Engine) CloseAccount(tenantID string, req models.CloseAccountRequest, code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.tenant(tenantID)
	if err != nil {
		return err
	}
	e.expireDue(t, e.now())

	acc, ok := t.accounts[code]
	if !ok {
		return fail(http.StatusNotFound, "account %s not found", code)
	}
	if acc.closed {
		return fail(http.StatusConflict, "account %s already closed", code)
	}
	if _, ok := t.accounts[req.DestinationAccountCode]; !ok {
		return fail(http.StatusNotFound, "destination account %s not found", req.DestinationAccountCode)
	}
	if req.DestinationAccountCode == code {
		return fail(http.StatusBadRequest, "destination must differ from the closed account")
	}
	for currency, pend := range acc.balances {
		if pend.debitsPending != 0 || pend.creditsPending != 0 {
			return fail(http.StatusConflict, "account %s has unresolved pending entries in %s", code, currency)
		}
	}
	tot := acc.totals(req.Currency)

	if diff := tot.creditsPosted - tot.debitsPosted; diff != 0 {
		sweep := &journal{id: e.newID(), kind: KindCloseSweep, state: statePosted, createdAt: e.now(), narration: "close " + code}
		if diff > 0 {
			sweep.debits = []domain.JournalLeg{domain.Leg(code, diff, req.Currency)}
			sweep.credits = []domain.JournalLeg{domain.Leg(req.DestinationAccountCode, diff, req.Currency)}
		} else {
			sweep.debits = []domain.JournalLeg{domain.Leg(req.DestinationAccountCode, -diff, req.Currency)}
			sweep.credits = []domain.JournalLeg{domain.Leg(code, -diff, req.Currency)}
		}
		if err := e.apply(t, sweep); err != nil {
			return err
		}
		t.journals[sweep.id] = sweep
	}
	acc.closed = true
	return nil
}

// maxTotal bounds every per-account running total.
var maxTotal = decimal.NewFromInt(math.MaxInt64)

// apply checks every leg against account policy and then books the whole
// journal, or nothing. Pending journals are booked as reservations. Policy
// sums are taken in decimal so they cannot wrap.
func (e *Engine) apply(t *tenant, j *journal) error {
	type key struct{ code, currency string }
	debit := make(map[key]decimal.Decimal)
	credit := make(map[key]decimal.Decimal)
	for _, leg := range j.debits {
		k := key{leg.AccountCode, leg.Currency}
		debit[k] = debit[k].Add(decimal.NewFromInt(leg.Amount))
	}
	for _, leg := range j.credits {
		k := key{leg.AccountCode, leg.Currency}
		credit[k] = credit[k].Add(decimal.NewFromInt(leg.Amount))
	}

	check := func(k key) error {
		acc, ok := t.accounts[k.code]
		if !ok {
			return fail(http.StatusNotFound, "account %s not found", k.code)
		}
		if acc.closed {
			return fail(http.StatusUnprocessableEntity, "account %s is closed", k.code)
		}
		tot := acc.totals(k.currency)
		debitsPosted := decimal.NewFromInt(tot.debitsPosted)
		creditsPosted := decimal.NewFromInt(tot.creditsPosted)
		debits := debitsPosted.Add(decimal.NewFromInt(tot.debitsPending)).Add(debit[k])
		credits := creditsPosted.Add(decimal.NewFromInt(tot.creditsPending)).Add(credit[k])
		if debits.GreaterThan(maxTotal) || credits.GreaterThan(maxTotal) {
			return fail(http.StatusBadRequest, "account %s: amount out of range", k.code)
		}

		flags := domain.AccountFlags{}
		if acc.Flags != nil {
			flags = *acc.Flags
		}
		if flags.DebitsMustNotExceedCredits && debits.GreaterThan(creditsPosted.Add(credit[k])) {
			return fail(http.StatusUnprocessableEntity, "account %s: debits would exceed credits", k.code)
		}
		if flags.CreditsMustNotExceedDebits && credits.GreaterThan(debitsPosted.Add(debit[k])) {
			return fail(http.StatusUnprocessableEntity, "account %s: credits would exceed debits", k.code)
		}
		if acc.MaxBalance != nil {
			high := credits.Sub(debitsPosted)
			if acc.debitNormal() {
				high = debits.Sub(creditsPosted)
			}
			if high.GreaterThan(decimal.NewFromInt(*acc.MaxBalance)) {
				return fail(http.StatusUnprocessableEntity, "account %s: max balance %d exceeded", k.code, *acc.MaxBalance)
			}
		}
		return nil
	}
	seen := make(map[key]bool)
	for _, m := range []map[key]decimal.Decimal{debit, credit} {
		for k := range m {
			if seen[k] {
				continue
			}
			seen[k] = true
			if err := check(k); err != nil {
				return err
			}
		}
	}

	// Every total was bounded above, so IntPart is exact.
	pending := j.state == statePending
	for k, amt := range debit {
		tot := t.accounts[k.code].totals(k.currency)
		if pending {
			tot.debitsPending += amt.IntPart()
		} else {
			tot.debitsPosted += amt.IntPart()
		}
	}
	for k, amt := range credit {
		tot := t.accounts[k.code].totals(k.currency)
		if pending {
			tot.creditsPending += amt.IntPart()
		} else {
			tot.creditsPosted += amt.IntPart()
		}
	}
	return nil
}

// expireDue moves overdue pending journals to expired and releases their
// reservations. The engine's clock alone decides expiry.
func (e *Engine) expireDue(t *tenant, now time.Time) {
	for _, j := range t.journals {
		if j.state != statePending || now.Before(j.expiresAt) {
			continue
		}
		for _, leg := range j.debits {
			t.accounts[leg.AccountCode].totals(leg.Currency).debitsPending -= leg.Amount
		}
		for _, leg := range j.credits {
			t.accounts[leg.AccountCode].totals(leg.Currency).creditsPending -= leg.Amount
		}
		j.state = stateExpired
	}
}

func (a *account) net(t *totals) int64 {
	if a.debitNormal() {
		return t.debitsPosted - t.creditsPosted
	}
	return t.creditsPosted - t.debitsPosted
}

// StatusOf maps an engine error to its HTTP status.
func StatusOf(err error) int {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Status
	}
	return http.StatusInternalServerError
}
