package service

import (
	"context"
	"errors"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/slotlock"
)

// SlotConflictGuard decides whether a slot is free and serializes bookings per slot.
//
// A slot holds at most one pending or approved appointment. The per-slot lock and the
// in-transaction check catch most contention; the store's uniqueness rule on active
// slots is the final arbiter.
type SlotConflictGuard struct {
	appointments repository.AppointmentRepository
	tx           repository.Transactor
	locker       slotlock.Locker
}

// NewSlotConflictGuard constructs the guard.
func NewSlotConflictGuard(appointments repository.AppointmentRepository, tx repository.Transactor, locker slotlock.Locker) *SlotConflictGuard {
	return &SlotConflictGuard{appointments: appointments, tx: tx, locker: locker}
}

// IsSlotFree reports whether no pending or approved appointment occupies slot.
func (g *SlotConflictGuard) IsSlotFree(ctx context.Context, slot domain.Slot) (bool, error) {
	_, err := g.appointments.FindActiveInSlot(ctx, slot)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// Reserve runs fn in a transaction while holding slot's lock, after confirming the slot
// is free. It returns repository.ErrSlotTaken when the slot is occupied or contended.
func (g *SlotConflictGuard) Reserve(ctx context.Context, slot domain.Slot, fn func(ctx context.Context) error) error {
	err := g.locker.WithSlotLock(ctx, slot, func(ctx context.Context) error {
		return g.tx.WithinTx(ctx, func(ctx context.Context) error {
			free, err := g.IsSlotFree(ctx, slot)
			if err != nil {
				return err
			}
			if !free {
				return repository.ErrSlotTaken
			}
			return fn(ctx)
		})
	})
	if errors.Is(err, slotlock.ErrLockNotAcquired) {
		return repository.ErrSlotTaken
	}
	return err
}
