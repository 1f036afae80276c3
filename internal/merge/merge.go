// Package merge implements the MergeExecutor component: validating a
// merge request, previewing it in dry-run mode, optionally
// backing it up, driving the external CRM merge calls with retry, and
// committing the group/record state transition atomically on success.
package merge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/kestrelcrm/dedupd/internal/backup"
	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/crm"
	"github.com/kestrelcrm/dedupd/internal/group"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// maxMembersWithoutWarning and maxPropertiesWithoutWarning gate the dry-run
// preview's large-merge warnings.
const (
	maxMembersWithoutWarning    = 5
	maxPropertiesWithoutWarning = 20
)

// Request configures one merge attempt.
type Request struct {
	GroupID           string
	PrimaryExternalID string
	CreateBackup      bool
	DryRun            bool
}

// Preview is the dry-run result: no mutation has occurred.
type Preview struct {
	Primary          record.Record
	RecordsToMerge   []record.Record
	EstimatedChanges []string
	Warnings         []string
}

// Result is the outcome of a (non-dry-run) merge attempt.
type Result struct {
	Success  bool
	Primary  string
	Absorbed []string
	// PartiallyAbsorbed lists secondaries the external merge call accepted
	// before a later secondary failed, so an operator can reconcile.
	PartiallyAbsorbed []string
	BackupPath        string
	Err               error
}

// Executor runs merges against a record store, group store, and external
// CRM client.
type Executor struct {
	records *record.Store
	groups  *group.Store
	client  crm.Client
	backups *backup.Writer
	log     zerolog.Logger
}

// New creates a MergeExecutor. backups may be nil if CreateBackup is never
// requested.
func New(records *record.Store, groups *group.Store, client crm.Client, backups *backup.Writer) *Executor {
	return &Executor{
		records: records,
		groups:  groups,
		client:  client,
		backups: backups,
		log:     logging.WithComponent("merge-executor"),
	}
}

// Client returns the external CRM collaborator this executor was built
// with, so callers (the CLI's connection-status command) can query it
// without reaching into the executor's internals.
func (x *Executor) Client() crm.Client {
	return x.client
}

// PruneBackups removes merge backup files older than retentionDays, giving
// the backup_retention_days configuration option somewhere to act.
// A nil backup writer (no CreateBackup ever requested) makes this a no-op.
func (x *Executor) PruneBackups(now time.Time, retentionDays int) (int, error) {
	if x.backups == nil {
		return 0, nil
	}
	return x.backups.Prune(now, retentionDays)
}

// Preview computes the dry-run preview without mutating anything.
func (x *Executor) Preview(ctx context.Context, req Request) (Preview, error) {
	g, matches, err := x.groups.Get(req.GroupID)
	if err != nil {
		return Preview{}, err
	}
	if len(matches) < 2 {
		return Preview{}, coreerr.New(coreerr.InvariantViolation, "group has fewer than two potential matches")
	}

	secondaries, err := x.secondaryIDs(matches, req.PrimaryExternalID)
	if err != nil {
		return Preview{}, err
	}

	primary, err := x.records.Get(g.Kind, req.PrimaryExternalID)
	if err != nil {
		return Preview{}, err
	}

	var toMerge []record.Record
	for _, id := range secondaries {
		r, err := x.records.Get(g.Kind, id)
		if err != nil {
			continue // skip records that vanished since the group was created
		}
		toMerge = append(toMerge, r)
	}

	changes := make([]string, 0, len(toMerge))
	for _, r := range toMerge {
		changes = append(changes, fmt.Sprintf("absorb %s (%s) into %s", r.ExternalID(), r.DisplayKey(), primary.ExternalID()))
	}

	var warnings []string
	if len(toMerge)+1 > maxMembersWithoutWarning {
		warnings = append(warnings, fmt.Sprintf("merging %d records at once; review carefully", len(toMerge)+1))
	}
	for _, r := range toMerge {
		if len(r.Properties()) > maxPropertiesWithoutWarning {
			warnings = append(warnings, fmt.Sprintf("%s carries %d custom properties that will be lost", r.ExternalID(), len(r.Properties())))
		}
	}

	return Preview{
		Primary:          primary,
		RecordsToMerge:   toMerge,
		EstimatedChanges: changes,
		Warnings:         warnings,
	}, nil
}

// Run executes a non-dry-run req. A request with DryRun set is rejected
// with an InvariantViolation error and nothing is mutated; dry runs go
// through Preview.
func (x *Executor) Run(ctx context.Context, now time.Time, req Request) (Result, error) {
	g, matches, err := x.groups.Get(req.GroupID)
	if err != nil {
		return Result{}, err
	}
	if len(matches) < 2 {
		return Result{}, coreerr.New(coreerr.InvariantViolation, "group has fewer than two potential matches")
	}

	secondaries, err := x.secondaryIDs(matches, req.PrimaryExternalID)
	if err != nil {
		return Result{}, err
	}

	if req.DryRun {
		return Result{}, coreerr.New(coreerr.InvariantViolation, "Run must not be called with DryRun set; use Preview")
	}

	conflicted, err := x.groups.PrimaryOfOtherPending(g.Kind, req.PrimaryExternalID, g.GroupID)
	if err != nil {
		return Result{}, err
	}
	if conflicted {
		return Result{}, coreerr.New(coreerr.Conflict,
			fmt.Sprintf("%s is already the primary of another pending %s group", req.PrimaryExternalID, g.Kind))
	}

	var backupPath string
	if req.CreateBackup {
		if x.backups == nil {
			return Result{}, coreerr.New(coreerr.InvariantViolation, "backup requested but no backup writer configured")
		}
		members, err := x.loadMembers(g.Kind, matches)
		if err != nil {
			return Result{}, err
		}
		meta := backup.Metadata{
			Confidence:    g.Confidence,
			MatchScore:    primaryMatchScore(matches, req.PrimaryExternalID),
			MatchedFields: allMatchedFields(matches),
		}
		path, err := x.backups.Write(now, g.GroupID, g.Kind, req.PrimaryExternalID, members, meta)
		if err != nil {
			return Result{}, err
		}
		backupPath = path
	}

	var absorbed []string
	for _, secondary := range secondaries {
		if err := x.mergeWithRetry(ctx, g.Kind, req.PrimaryExternalID, secondary); err != nil {
			err = classifyExternal(err, secondary, absorbed)
			return Result{
				Success:           false,
				Primary:           req.PrimaryExternalID,
				PartiallyAbsorbed: absorbed,
				BackupPath:        backupPath,
				Err:               err,
			}, err
		}
		absorbed = append(absorbed, secondary)
	}

	tx, err := x.records.Begin()
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	metadata := map[string]any{
		"confidence": g.Confidence,
		"matchScore": primaryMatchScore(matches, req.PrimaryExternalID),
	}
	if backupPath != "" {
		metadata["backupPath"] = backupPath
	}
	if err := x.groups.SetMergedInTx(tx, g, req.PrimaryExternalID, absorbed, g.MergeStrategy, metadata); err != nil {
		return Result{}, err
	}
	for _, id := range absorbed {
		if err := x.records.DeleteInTx(tx, g.Kind, id); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, coreerr.Wrap(coreerr.Io, "commit merge", err)
	}

	x.log.Info().Str("groupID", g.GroupID).Str("primary", req.PrimaryExternalID).Int("absorbed", len(absorbed)).Msg("merge completed")

	return Result{Success: true, Primary: req.PrimaryExternalID, Absorbed: absorbed, BackupPath: backupPath}, nil
}

// mergeWithRetry applies the per-merge retry policy: exponential backoff with
// jitter, initial delay 2s, cap 30s, max 3 retries, retryable on network
// errors and HTTP 429/500/502/503/504.
func (x *Executor) mergeWithRetry(ctx context.Context, kind record.Kind, primaryID, secondaryID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed wall time

	policy := backoff.WithMaxRetries(b, 3)
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := x.client.Merge(ctx, kind, primaryID, secondaryID)
		if err == nil {
			return nil
		}

		var merr *crm.MergeError
		if asMergeError(err, &merr) && !merr.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func asMergeError(err error, target **crm.MergeError) bool {
	me, ok := err.(*crm.MergeError)
	if !ok {
		return false
	}
	*target = me
	return true
}

// classifyExternal wraps a failed external merge call in an External
// CoreError carrying the CRM's status code when one was available, and the
// ids already absorbed before the failure so an operator can reconcile.
func classifyExternal(err error, failedSecondary string, absorbed []string) error {
	msg := fmt.Sprintf("crm merge of %s failed", failedSecondary)
	if len(absorbed) > 0 {
		msg = fmt.Sprintf("%s; already absorbed: %s", msg, strings.Join(absorbed, ", "))
	}
	var merr *crm.MergeError
	if asMergeError(err, &merr) {
		return coreerr.WithStatus(msg, merr.StatusCode, err)
	}
	return coreerr.Wrap(coreerr.External, msg, err)
}

func (x *Executor) secondaryIDs(matches []group.PotentialMatch, primaryID string) ([]string, error) {
	found := false
	var secondaries []string
	for _, m := range matches {
		if m.RecordExternalID == primaryID {
			found = true
			continue
		}
		secondaries = append(secondaries, m.RecordExternalID)
	}
	if !found {
		return nil, coreerr.New(coreerr.InvariantViolation, fmt.Sprintf("%s is not a member of this group", primaryID))
	}
	if len(secondaries) == 0 {
		return nil, coreerr.New(coreerr.InvariantViolation, "group has no secondaries to absorb")
	}
	return secondaries, nil
}

func (x *Executor) loadMembers(kind record.Kind, matches []group.PotentialMatch) ([]record.Record, error) {
	var out []record.Record
	for _, m := range matches {
		r, err := x.records.Get(kind, m.RecordExternalID)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func primaryMatchScore(matches []group.PotentialMatch, primaryID string) float64 {
	for _, m := range matches {
		if m.RecordExternalID == primaryID {
			return m.MatchScore
		}
	}
	return 0
}

func allMatchedFields(matches []group.PotentialMatch) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range matches {
		for _, f := range m.MatchedFields.Fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out
}
