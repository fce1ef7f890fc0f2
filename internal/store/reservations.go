package store

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// Reservations is the repository for file-reservation locks. Exclusivity
// (spec.md §3 invariant: "exclusive reservations on the same project
// must not overlap path patterns at any instant") is enforced inside
// CreateReservation by checking every other active reservation in the
// same project under the enclosing transaction, so two concurrent
// callers serialize through SQLite's single-writer transaction and
// never both observe "no conflict".
type Reservations struct {
	pool *Pool
}

// NewReservations builds a Reservations repository over pool.
func NewReservations(pool *Pool) *Reservations {
	return &Reservations{pool: pool}
}

// CreateReservation inserts a new reservation after checking it does
// not overlap any other active reservation in the project where at
// least one side is exclusive. Non-exclusive (shared) reservations
// never conflict with each other.
func (r *Reservations) CreateReservation(ctx context.Context, res *Reservation) error {
	return r.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		var active []Reservation
		if err := tx.Where("project_id = ? AND released_at_usec IS NULL AND expires_at_usec > ?",
			res.ProjectID, res.CreatedAtUsec).Find(&active).Error; err != nil {
			return errs.Wrap(err, errs.Internal, "store: load active reservations")
		}

		for _, other := range active {
			if !other.Exclusive && !res.Exclusive {
				continue
			}
			if PathPatternsOverlap(res.PathPattern, other.PathPattern) {
				return errs.Newf(errs.Conflict,
					"store: reservation on %q conflicts with active reservation on %q held by agent %d",
					res.PathPattern, other.PathPattern, other.AgentID)
			}
		}

		if err := tx.Create(res).Error; err != nil {
			return errs.Wrap(err, errs.Internal, "store: insert reservation")
		}
		return nil
	})
}

// ReleaseReservation marks a reservation released at nowUsec. Releasing
// an already-released or expired reservation is a no-op, not an error.
func (r *Reservations) ReleaseReservation(ctx context.Context, reservationID int64, nowUsec int64) error {
	return r.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		result := tx.Model(&Reservation{}).
			Where("id = ? AND released_at_usec IS NULL", reservationID).
			Update("released_at_usec", nowUsec)
		if result.Error != nil {
			return errs.Wrap(result.Error, errs.Internal, "store: release reservation")
		}
		return nil
	})
}

// ActiveReservationsForProject lists every reservation active at nowUsec.
func (r *Reservations) ActiveReservationsForProject(ctx context.Context, projectID int64, nowUsec int64) ([]Reservation, error) {
	db, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	var out []Reservation
	err = db.Where("project_id = ? AND released_at_usec IS NULL AND expires_at_usec > ?", projectID, nowUsec).
		Order("created_at_usec ASC").Find(&out).Error
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "store: list active reservations")
	}
	return out, nil
}

// PathPatternsOverlap reports whether two glob path patterns (using
// "*" for one path segment and "**" for any number of segments,
// including zero) could both match at least one common path. It is
// used to decide whether two reservations contend for the same files.
//
// The comparison walks both patterns segment by segment. A "**" in
// either pattern means the remainder of the other pattern is
// reachable underneath it, so the patterns overlap regardless of what
// follows. Mismatched literal segments mean the patterns can never
// overlap.
func PathPatternsOverlap(a, b string) bool {
	segsA := strings.Split(strings.Trim(a, "/"), "/")
	segsB := strings.Split(strings.Trim(b, "/"), "/")

	i, j := 0, 0
	for i < len(segsA) && j < len(segsB) {
		sa, sb := segsA[i], segsB[j]

		if sa == "**" || sb == "**" {
			return true
		}
		if sa != "*" && sb != "*" && sa != sb {
			return false
		}
		i++
		j++
	}

	if i == len(segsA) && j == len(segsB) {
		return true
	}
	// One pattern ran out of segments before the other: they overlap
	// only if the exhausted one ended in "**" (already handled above)
	// or the remaining pattern is empty from here on, neither of which
	// applies now, so they do not overlap.
	return false
}
