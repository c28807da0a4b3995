// Package runreport collects one sync run's actions and errors and
// derives the engine's exit code from them (spec §7: "errors are
// collected into a run report... The run report drives the exit
// code"). Grounded on the teacher's audit package: a global Auditor
// registry notified of typed events, generalized from encrypt/decrypt/
// rotate events to Cast's action outcomes, with the same optional
// Postgres sink.
package runreport

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/castsync/cast/apply"
	"github.com/castsync/cast/casterr"
	"github.com/castsync/cast/castlog"
	"github.com/castsync/cast/planner"
)

var log = castlog.New("RUNREPORT")

// Event is one notable occurrence during a run, handed to every
// registered Auditor.
type Event struct {
	VaultPair string
	Action    planner.Action
	Err       error
}

// Auditor is notified of every event a run produces.
type Auditor interface {
	Handle(Event)
}

var auditors []Auditor

// Register adds an Auditor to the run-wide notification list.
func Register(a Auditor) {
	auditors = append(auditors, a)
}

// SubmitEvent notifies every registered auditor of event.
func SubmitEvent(event Event) {
	for _, a := range auditors {
		a.Handle(event)
	}
}

// PostgresAuditor persists events to a Postgres audit_event table, the
// same schema shape as the teacher's PostgresAuditor.
type PostgresAuditor struct {
	DB *sql.DB
}

// NewPostgresAuditor opens and pings connStr, the way the teacher's
// constructor validates the connection eagerly rather than lazily.
func NewPostgresAuditor(connStr string) (*PostgresAuditor, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	var probe int
	if err := db.QueryRow("SELECT 1").Scan(&probe); err != nil {
		return nil, fmt.Errorf("pinging audit database: %w", err)
	}
	return &PostgresAuditor{DB: db}, nil
}

// Handle inserts one row per event.
func (p *PostgresAuditor) Handle(event Event) {
	errText := ""
	if event.Err != nil {
		errText = event.Err.Error()
	}
	_, err := p.DB.Exec(
		"INSERT INTO audit_event (vault_pair, identifier, dest_path, action, error) VALUES ($1, $2, $3, $4, $5)",
		event.VaultPair, event.Action.ID, event.Action.DestPath, string(event.Action.Kind), errText,
	)
	if err != nil {
		log.WithField("error", err).Error("failed to insert audit record")
	}
}

// Report accumulates one run's outcome across every action taken.
type Report struct {
	VaultPair   string
	Applied     []planner.Action
	Failed      []apply.Failure
	Conflicts   []string
	Collisions  []string
	PlanErrors  []error
	FatalErr    error
}

// New builds a Report from a planner error list, an apply result, and
// any fatal error that aborted the run before or during apply.
func New(vaultPair string, planErrs []error, result apply.Result, fatal error) *Report {
	r := &Report{
		VaultPair:  vaultPair,
		Applied:    result.Applied,
		Failed:     result.Failed,
		Conflicts:  result.Conflicts,
		Collisions: result.Collisions,
		PlanErrors: planErrs,
		FatalErr:   fatal,
	}
	for _, a := range result.Applied {
		SubmitEvent(Event{VaultPair: vaultPair, Action: a})
	}
	for _, f := range result.Failed {
		SubmitEvent(Event{VaultPair: vaultPair, Action: f.Action, Err: f.Err})
	}
	return r
}

// ExitCode maps the report to the engine-level exit code from spec §6:
// unresolved conflicts take precedence over a generic success code,
// and per-action failures surface as a filesystem-class error only if
// nothing worse already applies.
func (r *Report) ExitCode() int {
	if r.FatalErr != nil {
		return casterr.ExitCode(r.FatalErr)
	}
	if len(r.Conflicts) > 0 {
		return casterr.ExitConflictsRemain
	}
	if len(r.Failed) > 0 {
		return casterr.ExitFilesystemError
	}
	return casterr.ExitSuccess
}

// Summary renders a short human-readable tally, the shape cmd/cast
// prints after a run.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%d applied, %d failed, %d conflicts", len(r.Applied), len(r.Failed), len(r.Conflicts))
	if len(r.Collisions) > 0 {
		s += fmt.Sprintf(", %d collisions", len(r.Collisions))
	}
	return s
}
