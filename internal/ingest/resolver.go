// Package ingest resolves normalized job candidates against the store:
// each candidate is classified as new, unchanged or updated, keyed by
// its stable identity. Re-running a resolution with identical input is
// idempotent, which is what makes re-scraping after a transient
// failure always safe.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobhunt/internal/model"
	"jobhunt/internal/store"
)

// Outcome classifies one resolution.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeUpdated   Outcome = "updated"
)

// Resolver deduplicates candidates against the store.
type Resolver struct {
	store store.Store
}

// NewResolver constructs a Resolver over the given store.
func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Resolve classifies the candidate and persists the result:
//
//   - no job under the identity key: insert with first_seen = last_seen = now
//   - known job, same content hash: advance last_seen_at only
//   - known job, changed hash: update stored fields and append a
//     ChangeNote recording the old and new hash
//
// A concurrent insert losing the uniqueness race converts into the
// update path, so two concurrent resolutions of the same identity
// never produce two rows.
func (r *Resolver) Resolve(ctx context.Context, candidate model.Job, now time.Time) (Outcome, error) {
	existing, err := r.store.GetJob(ctx, candidate.IdentityKey)
	if errors.Is(err, store.ErrUnknownJob) {
		candidate.FirstSeenAt = now
		candidate.LastSeenAt = now

		insertErr := r.store.InsertJob(ctx, candidate)
		if insertErr == nil {
			return OutcomeNew, nil
		}
		if !errors.Is(insertErr, store.ErrIdentityConflict) {
			return "", fmt.Errorf("insert job %s: %w", candidate.IdentityKey, insertErr)
		}
		// Lost the insert race; the row exists now.
		existing, err = r.store.GetJob(ctx, candidate.IdentityKey)
		if err != nil {
			// Conflict without a visible row is a data-integrity fault.
			return "", fmt.Errorf("identity conflict for %s but no row found: %w",
				candidate.IdentityKey, err)
		}
	} else if err != nil {
		return "", fmt.Errorf("look up job %s: %w", candidate.IdentityKey, err)
	}

	if existing.ContentHash == candidate.ContentHash {
		if err := r.store.MarkJobSeen(ctx, candidate.IdentityKey, now); err != nil {
			return "", fmt.Errorf("mark job %s seen: %w", candidate.IdentityKey, err)
		}
		return OutcomeUnchanged, nil
	}

	// Content changed: keep the original discovery metadata, advance
	// last_seen_at and record the hash transition.
	candidate.Keyword = existing.Keyword
	candidate.SearchLocation = existing.SearchLocation
	candidate.FirstSeenAt = existing.FirstSeenAt
	candidate.LastSeenAt = now
	note := model.ChangeNote{
		OldHash:   existing.ContentHash,
		NewHash:   candidate.ContentHash,
		ChangedAt: now,
	}
	if err := r.store.UpdateJobContent(ctx, candidate, note); err != nil {
		return "", fmt.Errorf("update job %s: %w", candidate.IdentityKey, err)
	}
	return OutcomeUpdated, nil
}
