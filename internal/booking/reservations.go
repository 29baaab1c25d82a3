package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/linyucheng/seatbook-backend/internal/records"
	pkgerrors "github.com/linyucheng/seatbook-backend/pkg/errors"
)

// Book runs the booking protocol: idempotency replay check, login
// uniqueness, seat reservation, record write, ledger write. A record
// write failure releases the seats again before reporting the error.
func (s *Service) Book(ctx context.Context, req BookRequest) (BookResult, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	result, err := s.book(ctx, req)
	s.observe("book", err)
	return result, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (BookResult, error) {
	if err := s.validateBooking(req); err != nil {
		return BookResult{}, err
	}

	token := strings.TrimSpace(req.IdempotencyToken)
	if token != "" {
		if result, found, err := s.replayFromLedger(ctx, token); err != nil {
			return BookResult{}, err
		} else if found {
			return result, nil
		}
	}

	exists, err := s.existsLogin(ctx, req.LoginID, "")
	if err != nil {
		return BookResult{}, err
	}
	if exists {
		return BookResult{}, pkgerrors.New(pkgerrors.CodeDuplicateLogin, "login id already holds a reservation").
			WithDetails(map[string]any{"login_id": req.LoginID})
	}

	if err := s.seats.Reserve(ctx, req.TableID, req.Seats); err != nil {
		return BookResult{}, seatError(err)
	}

	now := s.now().UTC()
	holder := strings.TrimSpace(req.EmployeeName)
	if holder == "" {
		holder = defaultHolderName
	}
	rec := &records.Reservation{
		ID:          s.newID(),
		TableID:     req.TableID,
		SeatsTaken:  req.Seats,
		HolderName:  holder,
		LoginID:     strings.TrimSpace(req.LoginID),
		BookingDate: now.In(s.loc).Format("2006-01-02"),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.recs.Create(ctx, rec); err != nil {
		s.compensateRelease(ctx, rec.TableID, rec.SeatsTaken, "record write failed")
		return BookResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "writing reservation record")
	}
	s.cache.Invalidate()

	if token != "" {
		if result, replayed := s.settleLedger(ctx, token, rec); replayed {
			return result, nil
		}
	}
	return BookResult{Reservation: s.reservationDTO(rec)}, nil
}

func (s *Service) validateBooking(req BookRequest) error {
	if req.TableID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "table_id must be positive")
	}
	if strings.TrimSpace(req.LoginID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "login_id is required")
	}
	if req.Seats < 1 || req.Seats > s.maxPerBooking {
		return pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("seats must be between 1 and %d", s.maxPerBooking)).
			WithDetails(map[string]any{"max_per_booking": s.maxPerBooking})
	}
	return nil
}

// replayFromLedger returns the original booking for a known token. A
// ledger entry whose record has since been cancelled is treated as
// stale and the booking proceeds fresh.
func (s *Service) replayFromLedger(ctx context.Context, token string) (BookResult, bool, error) {
	id, found, err := s.ledger.Lookup(ctx, token)
	if err != nil {
		return BookResult{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency lookup")
	}
	if !found {
		return BookResult{}, false, nil
	}
	rec, err := s.recs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			if s.logg != nil {
				lctx := s.logg.WithReservationID(ctx, id)
				s.logg.Warn(lctx, "idempotency token points at a cancelled reservation, booking fresh")
			}
			return BookResult{}, false, nil
		}
		return BookResult{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading replayed reservation")
	}
	return BookResult{Reservation: s.reservationDTO(rec), Replayed: true}, true, nil
}

// settleLedger records the token after a durable booking. Losing the
// first-writer race means a concurrent request with the same token
// already booked; this booking rolls back and the winner is replayed.
// A plain ledger write failure is logged and the booking stands.
func (s *Service) settleLedger(ctx context.Context, token string, rec *records.Reservation) (BookResult, bool) {
	created, err := s.ledger.Remember(ctx, token, rec.ID)
	if err != nil {
		if s.logg != nil {
			lctx := s.logg.WithReservationID(ctx, rec.ID)
			s.logg.Error(lctx, "ledger write failed after booking, replays will not dedupe", err)
		}
		return BookResult{}, false
	}
	if created {
		return BookResult{}, false
	}

	winnerID, found, err := s.ledger.Lookup(ctx, token)
	if err != nil || !found || winnerID == rec.ID {
		return BookResult{}, false
	}
	winner, err := s.recs.Get(ctx, winnerID)
	if err != nil {
		return BookResult{}, false
	}
	s.rollbackBooking(ctx, rec)
	return BookResult{Reservation: s.reservationDTO(winner), Replayed: true}, true
}

func (s *Service) rollbackBooking(ctx context.Context, rec *records.Reservation) {
	if err := s.recs.Delete(ctx, rec); err != nil && !errors.Is(err, records.ErrNotFound) {
		if s.logg != nil {
			lctx := s.logg.WithReservationID(ctx, rec.ID)
			s.logg.Error(lctx, "duplicate booking record could not be removed", err)
		}
		return
	}
	s.cache.Invalidate()
	s.compensateRelease(ctx, rec.TableID, rec.SeatsTaken, "duplicate idempotent booking")
}

// compensateRelease is best-effort: a failure leaves seat drift that
// the resync job repairs.
func (s *Service) compensateRelease(ctx context.Context, tableID, seatCount int, reason string) {
	if err := s.seats.Release(ctx, tableID, seatCount); err != nil && s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{
			"table_id": tableID,
			"seats":    seatCount,
			"reason":   reason,
		})
		s.logg.Error(lctx, "seat release compensation failed, resync will repair", err)
	}
}

// GetReservation loads one reservation by id.
func (s *Service) GetReservation(ctx context.Context, id string) (Reservation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	return s.reservationDTO(rec), nil
}

func (s *Service) getRecord(ctx context.Context, id string) (*records.Reservation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation id is required")
	}
	rec, err := s.recs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading reservation")
	}
	return rec, nil
}

// Cancel removes the reservation record first and releases the seats
// after; a failed release is logged and healed by resync rather than
// resurrecting the record.
func (s *Service) Cancel(ctx context.Context, id string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	err := s.cancel(ctx, id)
	s.observe("cancel", err)
	return err
}

func (s *Service) cancel(ctx context.Context, id string) error {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if err := s.recs.Delete(ctx, rec); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deleting reservation record")
	}
	s.cache.Invalidate()
	s.compensateRelease(ctx, rec.TableID, rec.SeatsTaken, "cancellation")
	return nil
}

// UpdateDetails applies a partial update. A seat count change adjusts
// inventory by the difference before the record write; a failed record
// write reverses the adjustment.
func (s *Service) UpdateDetails(ctx context.Context, id string, req UpdateRequest) (Reservation, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	dto, err := s.updateDetails(ctx, id, req)
	s.observe("update", err)
	return dto, err
}

func (s *Service) updateDetails(ctx context.Context, id string, req UpdateRequest) (Reservation, error) {
	rec, err := s.getRecord(ctx, id)
	if err != nil {
		return Reservation{}, err
	}

	if req.LoginID != nil {
		newLogin := strings.TrimSpace(*req.LoginID)
		if newLogin == "" {
			return Reservation{}, pkgerrors.New(pkgerrors.CodeValidation, "login_id cannot be blank")
		}
		if records.NormalizeLogin(newLogin) != records.NormalizeLogin(rec.LoginID) {
			exists, err := s.existsLogin(ctx, newLogin, rec.ID)
			if err != nil {
				return Reservation{}, err
			}
			if exists {
				return Reservation{}, pkgerrors.New(pkgerrors.CodeDuplicateLogin, "login id already holds a reservation").
					WithDetails(map[string]any{"login_id": newLogin})
			}
		}
		rec.LoginID = newLogin
	}

	if req.EmployeeName != nil {
		holder := strings.TrimSpace(*req.EmployeeName)
		if holder == "" {
			holder = defaultHolderName
		}
		rec.HolderName = holder
	}

	seatDiff := 0
	if req.Seats != nil {
		newSeats := *req.Seats
		if newSeats < 1 || newSeats > s.maxPerBooking {
			return Reservation{}, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("seats must be between 1 and %d", s.maxPerBooking)).
				WithDetails(map[string]any{"max_per_booking": s.maxPerBooking})
		}
		seatDiff = newSeats - rec.SeatsTaken
		rec.SeatsTaken = newSeats
	}

	if seatDiff > 0 {
		if err := s.seats.Reserve(ctx, rec.TableID, seatDiff); err != nil {
			return Reservation{}, seatError(err)
		}
	} else if seatDiff < 0 {
		if err := s.seats.Release(ctx, rec.TableID, -seatDiff); err != nil {
			return Reservation{}, seatError(err)
		}
	}

	rec.UpdatedAt = s.now().UTC()
	if err := s.recs.Update(ctx, rec); err != nil {
		s.reverseAdjustment(ctx, rec.TableID, seatDiff)
		if errors.Is(err, records.ErrNotFound) {
			return Reservation{}, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return Reservation{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating reservation record")
	}
	s.cache.Invalidate()
	return s.reservationDTO(rec), nil
}

// reverseAdjustment undoes a seat diff applied before a failed record
// write. Best-effort, like compensateRelease.
func (s *Service) reverseAdjustment(ctx context.Context, tableID, seatDiff int) {
	if seatDiff == 0 {
		return
	}
	var err error
	if seatDiff > 0 {
		err = s.seats.Release(ctx, tableID, seatDiff)
	} else {
		err = s.seats.Reserve(ctx, tableID, -seatDiff)
	}
	if err != nil && s.logg != nil {
		lctx := s.logg.WithFields(ctx, map[string]any{"table_id": tableID, "seat_diff": seatDiff})
		s.logg.Error(lctx, "seat adjustment rollback failed, resync will repair", err)
	}
}
