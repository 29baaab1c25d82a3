package booking

import (
	"context"
	"errors"
	"sort"

	"github.com/linyucheng/seatbook-backend/internal/inventory"
	pkgerrors "github.com/linyucheng/seatbook-backend/pkg/errors"
)

// Resync recomputes every table's seats_left from the reservation
// records and repairs drift with one conditional inventory write. A
// booking racing the resync fails the version check and the caller
// retries.
func (s *Service) Resync(ctx context.Context) (ResyncReport, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	report, err := s.resync(ctx)
	s.observe("resync", err)
	return report, err
}

func (s *Service) resync(ctx context.Context) (ResyncReport, error) {
	all, err := s.recs.ListAll(ctx)
	if err != nil {
		return ResyncReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing reservations")
	}

	// Snapshot after the slow record listing so the version going into
	// the conditional write is as fresh as possible.
	snap, err := s.seats.Store().ReadAll(ctx)
	if err != nil {
		return ResyncReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading inventory")
	}

	taken := map[int]int{}
	for _, rec := range all {
		taken[rec.TableID] += rec.SeatsTaken
	}

	desired := inventory.CloneTables(snap.Tables)
	var adjusted []int
	for id, state := range desired {
		want := state.Total - taken[id]
		if want < 0 {
			// more seats booked than the table holds; floor at zero
			// and leave the over-booking for operators
			if s.logg != nil {
				lctx := s.logg.WithTableID(ctx, id)
				s.logg.Warn(lctx, "reservations exceed table capacity")
			}
			want = 0
		}
		if state.SeatsLeft == want {
			continue
		}
		state.SeatsLeft = want
		desired[id] = state
		adjusted = append(adjusted, id)
	}
	sort.Ints(adjusted)

	report := ResyncReport{
		TablesChecked:  len(desired),
		TablesAdjusted: len(adjusted),
		AdjustedIDs:    adjusted,
	}
	if len(adjusted) == 0 {
		return report, nil
	}

	if err := s.seats.Store().WriteAll(ctx, desired, snap.Version); err != nil {
		if errors.Is(err, inventory.ErrVersionConflict) {
			return ResyncReport{}, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "inventory changed during resync, retry")
		}
		return ResyncReport{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing repaired inventory")
	}
	if s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{"tables_adjusted": len(adjusted)})
		s.logg.Info(lctx, "inventory drift repaired")
	}
	return report, nil
}
