/*
audit.go - Periodic ledger audit

PURPOSE:
  The Service refuses any debit that would overdraw a balance. The Auditor
  double-checks the stored history independently: it replays every user's
  statements in insertion order and reports the first point at which the
  running balance dropped below zero. A healthy ledger never produces a
  violation; one appearing means data was written around the Service.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Runs once immediately on Start
  - Read-only; the audit never appends or repairs anything
  - The last report is kept in memory for inspection

USAGE:
  auditor := ledger.NewAuditor(store, store, time.Hour, log)
  auditor.Start()
  // ... later
  auditor.Stop()

SEE ALSO:
  - service.go: Enforces the rule the audit re-checks
  - balance.go: Calculate, the order-independent total
*/
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// UserLister enumerates every user that owns at least one statement.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Violation is the first statement after which a user's balance was negative.
type Violation struct {
	UserID      string
	StatementID string
	Index       int
	Balance     decimal.Decimal
}

func (v Violation) String() string {
	return fmt.Sprintf("user %s went to %s at statement %s (#%d)", v.UserID, v.Balance, v.StatementID, v.Index)
}

// Replay walks statements in the given order and returns the first point
// where the running balance is negative, or nil.
func Replay(sts []Statement) *Violation {
	running := decimal.Zero
	for i, st := range sts {
		running = running.Add(st.Signed())
		if running.IsNegative() {
			return &Violation{
				UserID:      st.UserID,
				StatementID: st.ID,
				Index:       i,
				Balance:     running,
			}
		}
	}
	return nil
}

// AuditReport summarizes one audit run.
type AuditReport struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	UsersChecked int
	Violations   []Violation
}

// =============================================================================
// AUDITOR
// =============================================================================

type Auditor struct {
	Store         Store
	Users         UserLister
	CheckInterval time.Duration

	log zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastMu sync.RWMutex
	last   *AuditReport
}

func NewAuditor(store Store, lister UserLister, interval time.Duration, log zerolog.Logger) *Auditor {
	return &Auditor{
		Store:         store,
		Users:         lister,
		CheckInterval: interval,
		log:           log.With().Str("component", "audit").Logger(),
	}
}

// Start begins periodic audits. A non-positive interval disables them.
func (a *Auditor) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.CheckInterval <= 0 {
		a.log.Info().Msg("audit disabled")
		return
	}
	if a.ticker != nil {
		return
	}

	a.ticker = time.NewTicker(a.CheckInterval)
	a.stop = make(chan struct{})
	a.wg.Add(1)
	go a.run()

	a.log.Info().Dur("interval", a.CheckInterval).Msg("audit started")
}

// Stop halts the auditor and waits for a running audit to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ticker == nil {
		return
	}
	a.ticker.Stop()
	close(a.stop)
	a.wg.Wait()
	a.ticker = nil
	a.log.Info().Msg("audit stopped")
}

func (a *Auditor) run() {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-a.stop
		cancel()
	}()

	a.runLogged(ctx)
	for {
		select {
		case <-a.ticker.C:
			a.runLogged(ctx)
		case <-a.stop:
			return
		}
	}
}

func (a *Auditor) runLogged(ctx context.Context) {
	if _, err := a.RunNow(ctx); err != nil && ctx.Err() == nil {
		a.log.Error().Err(err).Msg("audit failed")
	}
}

// RunNow audits every user once and stores the report.
func (a *Auditor) RunNow(ctx context.Context) (AuditReport, error) {
	report := AuditReport{StartedAt: time.Now().UTC()}

	ids, err := a.Users.ListUserIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sts, err := a.Store.ListByUser(ctx, id)
		if err != nil {
			return report, fmt.Errorf("failed to load statements for %s: %w", id, err)
		}
		report.UsersChecked++
		if v := Replay(sts); v != nil {
			report.Violations = append(report.Violations, *v)
			a.log.Error().
				Str("user_id", v.UserID).
				Str("statement_id", v.StatementID).
				Str("balance", v.Balance.String()).
				Msg("negative balance in ledger history")
		}
	}

	report.CompletedAt = time.Now().UTC()
	a.lastMu.Lock()
	a.last = &report
	a.lastMu.Unlock()

	a.log.Debug().
		Int("users", report.UsersChecked).
		Int("violations", len(report.Violations)).
		Msg("audit completed")
	return report, nil
}

// LastReport returns the most recent report, or nil before the first run.
func (a *Auditor) LastReport() *AuditReport {
	a.lastMu.RLock()
	defer a.lastMu.RUnlock()
	return a.last
}
