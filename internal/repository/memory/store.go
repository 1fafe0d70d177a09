// Package memory provides an in-process implementation of the repository interfaces.
// It backs development runs without POSTGRES_DSN and the service tests, and enforces
// the same uniqueness rules as the SQL schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/booking-service/internal/domain"
	"github.com/spec-kit/booking-service/internal/repository"
)

type txKey struct{}

// Store holds all records behind a single mutex. Transactions hold the mutex for their
// whole duration and restore a snapshot on failure.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

type state struct {
	seq           int64
	identities    map[string]record[domain.Identity]
	profiles      map[string]record[domain.PractitionerProfile]
	appointments  map[string]record[domain.Appointment]
	notifications map[string]record[domain.Notification]
}

type record[T any] struct {
	seq   int64
	value T
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: &state{
			identities:    make(map[string]record[domain.Identity]),
			profiles:      make(map[string]record[domain.PractitionerProfile]),
			appointments:  make(map[string]record[domain.Appointment]),
			notifications: make(map[string]record[domain.Notification]),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *state) clone() *state {
	return &state{
		seq:           s.seq,
		identities:    cloneMap(s.identities),
		profiles:      cloneMap(s.profiles),
		appointments:  cloneMap(s.appointments),
		notifications: cloneMap(s.notifications),
	}
}

func cloneMap[T any](m map[string]record[T]) map[string]record[T] {
	out := make(map[string]record[T], len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) nextSeq() int64 {
	s.seq++
	return s.seq
}

// lock acquires the store mutex unless ctx already runs inside one of its transactions.
func (s *Store) lock(ctx context.Context) func() {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx implements repository.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(txKey{}).(*Store); ok && owner == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.state = backup
		return err
	}
	return nil
}

// Transactor exposes the store as a repository.Transactor.
func (s *Store) Transactor() repository.Transactor { return s }

// Identities returns the identity repository view.
func (s *Store) Identities() repository.IdentityRepository { return &identityRepo{s} }

// Practitioners returns the practitioner profile repository view.
func (s *Store) Practitioners() repository.PractitionerRepository { return &practitionerRepo{s} }

// Appointments returns the appointment repository view.
func (s *Store) Appointments() repository.AppointmentRepository { return &appointmentRepo{s} }

// Notifications returns the notification repository view.
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepo{s} }

// sortedValues returns values newest first.
func sortedValues[T any](m map[string]record[T], keep func(T) bool) []T {
	recs := make([]record[T], 0, len(m))
	for _, r := range m {
		if keep == nil || keep(r.value) {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
	out := make([]T, len(recs))
	for i, r := range recs {
		out[i] = r.value
	}
	return out
}

func paginate[T any](items []T, page repository.Page) []T {
	limit := page.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

type identityRepo struct{ s *Store }

func (r *identityRepo) Create(ctx context.Context, identity *domain.Identity) error {
	defer r.s.lock(ctx)()
	st := r.s.state
	for _, rec := range st.identities {
		if strings.EqualFold(rec.value.Email, identity.Email) {
			return repository.ErrDuplicateEmail
		}
	}
	now := r.s.now()
	identity.ID = uuid.NewString()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	st.identities[identity.ID] = record[domain.Identity]{seq: st.nextSeq(), value: *identity}
	return nil
}

func (r *identityRepo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	identity := rec.value
	return &identity, nil
}

func (r *identityRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	defer r.s.lock(ctx)()
	for _, rec := range r.s.state.identities {
		if strings.EqualFold(rec.value.Email, email) {
			identity := rec.value
			return &identity, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *identityRepo) UpdateRole(ctx context.Context, id string, role domain.Role) error {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.value.Role = role
	rec.value.UpdatedAt = r.s.now()
	r.s.state.identities[id] = rec
	return nil
}

func (r *identityRepo) List(ctx context.Context, role *domain.Role, page repository.Page) ([]domain.Identity, error) {
	defer r.s.lock(ctx)()
	items := sortedValues(r.s.state.identities, func(i domain.Identity) bool {
		return role == nil || i.Role == *role
	})
	return paginate(items, page), nil
}

func (r *identityRepo) CountByRole(ctx context.Context) (map[domain.Role]int, error) {
	defer r.s.lock(ctx)()
	counts := make(map[domain.Role]int, len(domain.Roles))
	for _, rec := range r.s.state.identities {
		counts[rec.value.Role]++
	}
	return counts, nil
}

func (r *identityRepo) Delete(ctx context.Context, id string) error {
	defer r.s.lock(ctx)()
	if _, ok := r.s.state.identities[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.state.identities, id)
	return nil
}

type practitionerRepo struct{ s *Store }

func (r *practitionerRepo) emailTaken(email, exceptID string) bool {
	for id, rec := range r.s.state.profiles {
		if id != exceptID && strings.EqualFold(rec.value.Email, email) {
			return true
		}
	}
	return false
}

func (r *practitionerRepo) Create(ctx context.Context, p *domain.PractitionerProfile) error {
	defer r.s.lock(ctx)()
	st := r.s.state
	for _, rec := range st.profiles {
		if rec.value.IdentityID == p.IdentityID {
			return repository.ErrDuplicateProfile
		}
	}
	if r.emailTaken(p.Email, "") {
		return repository.ErrDuplicateEmail
	}
	now := r.s.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	st.profiles[p.ID] = record[domain.PractitionerProfile]{seq: st.nextSeq(), value: *p}
	return nil
}

func (r *practitionerRepo) Update(ctx context.Context, p *domain.PractitionerProfile) error {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.profiles[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if r.emailTaken(p.Email, p.ID) {
		return repository.ErrDuplicateEmail
	}
	updated := *p
	updated.IdentityID = rec.value.IdentityID
	updated.Status = rec.value.Status
	updated.CreatedAt = rec.value.CreatedAt
	updated.UpdatedAt = r.s.now()
	rec.value = updated
	r.s.state.profiles[p.ID] = rec
	p.UpdatedAt = updated.UpdatedAt
	return nil
}

func (r *practitionerRepo) GetByID(ctx context.Context, id string) (*domain.PractitionerProfile, error) {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.profiles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p := rec.value
	return &p, nil
}

func (r *practitionerRepo) find(match func(domain.PractitionerProfile) bool) (*domain.PractitionerProfile, error) {
	for _, rec := range r.s.state.profiles {
		if match(rec.value) {
			p := rec.value
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *practitionerRepo) GetByIdentityID(ctx context.Context, identityID string) (*domain.PractitionerProfile, error) {
	defer r.s.lock(ctx)()
	return r.find(func(p domain.PractitionerProfile) bool { return p.IdentityID == identityID })
}

func (r *practitionerRepo) GetByEmail(ctx context.Context, email string) (*domain.PractitionerProfile, error) {
	defer r.s.lock(ctx)()
	return r.find(func(p domain.PractitionerProfile) bool { return strings.EqualFold(p.Email, email) })
}

func (r *practitionerRepo) UpdateStatus(ctx context.Context, id string, from, to domain.OnboardingStatus) error {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.value.Status != from {
		return repository.ErrStale
	}
	rec.value.Status = to
	rec.value.UpdatedAt = r.s.now()
	r.s.state.profiles[id] = rec
	return nil
}

func (r *practitionerRepo) List(ctx context.Context, filter repository.PractitionerFilter) ([]domain.PractitionerProfile, error) {
	defer r.s.lock(ctx)()
	items := sortedValues(r.s.state.profiles, func(p domain.PractitionerProfile) bool {
		return filter.Status == nil || p.Status == *filter.Status
	})
	return paginate(items, filter.Page), nil
}

func (r *practitionerRepo) CountByStatus(ctx context.Context) (map[domain.OnboardingStatus]int, error) {
	defer r.s.lock(ctx)()
	counts := make(map[domain.OnboardingStatus]int)
	for _, rec := range r.s.state.profiles {
		counts[rec.value.Status]++
	}
	return counts, nil
}

func (r *practitionerRepo) DeleteByIdentityID(ctx context.Context, identityID string) error {
	defer r.s.lock(ctx)()
	for id, rec := range r.s.state.profiles {
		if rec.value.IdentityID == identityID {
			delete(r.s.state.profiles, id)
		}
	}
	return nil
}

type appointmentRepo struct{ s *Store }

func (r *appointmentRepo) activeInSlot(slot domain.Slot) (*domain.Appointment, bool) {
	for _, rec := range r.s.state.appointments {
		a := rec.value
		if a.Status.Active() && a.Slot() == slot {
			return &a, true
		}
	}
	return nil, false
}

func (r *appointmentRepo) Create(ctx context.Context, a *domain.Appointment) error {
	defer r.s.lock(ctx)()
	st := r.s.state
	if a.Status.Active() {
		if _, taken := r.activeInSlot(a.Slot()); taken {
			return repository.ErrSlotTaken
		}
	}
	now := r.s.now()
	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	st.appointments[a.ID] = record[domain.Appointment]{seq: st.nextSeq(), value: *a}
	return nil
}

func (r *appointmentRepo) GetByID(ctx context.Context, id string) (*domain.Appointment, error) {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.appointments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	a := rec.value
	return &a, nil
}

func (r *appointmentRepo) FindActiveInSlot(ctx context.Context, slot domain.Slot) (*domain.Appointment, error) {
	defer r.s.lock(ctx)()
	if a, ok := r.activeInSlot(slot); ok {
		return a, nil
	}
	return nil, repository.ErrNotFound
}

func (r *appointmentRepo) UpdateStatus(ctx context.Context, a *domain.Appointment, from domain.AppointmentStatus) error {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.appointments[a.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.value.Status != from {
		return repository.ErrStale
	}
	rec.value.Status = a.Status
	rec.value.PractitionerNotes = a.PractitionerNotes
	rec.value.UpdatedAt = r.s.now()
	r.s.state.appointments[a.ID] = rec
	a.UpdatedAt = rec.value.UpdatedAt
	return nil
}

func matchAppointment(filter repository.AppointmentFilter) func(domain.Appointment) bool {
	return func(a domain.Appointment) bool {
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			return false
		}
		if filter.PractitionerID != nil && a.PractitionerID != *filter.PractitionerID {
			return false
		}
		if filter.Date != nil && a.Date != *filter.Date {
			return false
		}
		if len(filter.Statuses) > 0 {
			for _, status := range filter.Statuses {
				if a.Status == status {
					return true
				}
			}
			return false
		}
		return true
	}
}

func (r *appointmentRepo) List(ctx context.Context, filter repository.AppointmentFilter) ([]domain.Appointment, error) {
	defer r.s.lock(ctx)()
	return paginate(sortedValues(r.s.state.appointments, matchAppointment(filter)), filter.Page), nil
}

func (r *appointmentRepo) CountByStatus(ctx context.Context, filter repository.AppointmentFilter) (map[domain.AppointmentStatus]int, error) {
	defer r.s.lock(ctx)()
	counts := make(map[domain.AppointmentStatus]int, len(domain.AppointmentStatuses))
	match := matchAppointment(filter)
	for _, rec := range r.s.state.appointments {
		if match(rec.value) {
			counts[rec.value.Status]++
		}
	}
	return counts, nil
}

func (r *appointmentRepo) DeleteByParticipant(ctx context.Context, identityID string) (int64, error) {
	defer r.s.lock(ctx)()
	var deleted int64
	for id, rec := range r.s.state.appointments {
		if rec.value.PatientID == identityID || rec.value.Practitioner.IdentityID == identityID {
			delete(r.s.state.appointments, id)
			deleted++
		}
	}
	return deleted, nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) forIdentity(identityID string) []record[domain.Notification] {
	var recs []record[domain.Notification]
	for _, rec := range r.s.state.notifications {
		if rec.value.IdentityID == identityID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
	return recs
}

func (r *notificationRepo) evict(identityID string, retain int) int64 {
	if retain <= 0 {
		return 0
	}
	var evicted int64
	for i, rec := range r.forIdentity(identityID) {
		if i >= retain {
			delete(r.s.state.notifications, rec.value.ID)
			evicted++
		}
	}
	return evicted
}

func (r *notificationRepo) Append(ctx context.Context, n *domain.Notification, retain int) error {
	defer r.s.lock(ctx)()
	st := r.s.state
	if n.Payload == nil {
		n.Payload = map[string]any{}
	}
	n.ID = uuid.NewString()
	n.CreatedAt = r.s.now()
	st.notifications[n.ID] = record[domain.Notification]{seq: st.nextSeq(), value: *n}
	r.evict(n.IdentityID, retain)
	return nil
}

func (r *notificationRepo) ListByIdentity(ctx context.Context, identityID string, page repository.Page) ([]domain.Notification, error) {
	defer r.s.lock(ctx)()
	recs := r.forIdentity(identityID)
	items := make([]domain.Notification, len(recs))
	for i, rec := range recs {
		items[i] = rec.value
	}
	return paginate(items, page), nil
}

func (r *notificationRepo) MarkRead(ctx context.Context, identityID, notificationID string) error {
	defer r.s.lock(ctx)()
	rec, ok := r.s.state.notifications[notificationID]
	if !ok || rec.value.IdentityID != identityID {
		return repository.ErrNotFound
	}
	rec.value.Read = true
	r.s.state.notifications[notificationID] = rec
	return nil
}

func (r *notificationRepo) MarkAllRead(ctx context.Context, identityID string) (int64, error) {
	defer r.s.lock(ctx)()
	var updated int64
	for id, rec := range r.s.state.notifications {
		if rec.value.IdentityID == identityID && !rec.value.Read {
			rec.value.Read = true
			r.s.state.notifications[id] = rec
			updated++
		}
	}
	return updated, nil
}

func (r *notificationRepo) CountUnread(ctx context.Context, identityID string) (int, error) {
	defer r.s.lock(ctx)()
	count := 0
	for _, rec := range r.s.state.notifications {
		if rec.value.IdentityID == identityID && !rec.value.Read {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepo) Trim(ctx context.Context, retain int) (int64, error) {
	defer r.s.lock(ctx)()
	identities := make(map[string]struct{})
	for _, rec := range r.s.state.notifications {
		identities[rec.value.IdentityID] = struct{}{}
	}
	var evicted int64
	for identityID := range identities {
		evicted += r.evict(identityID, retain)
	}
	return evicted, nil
}

func (r *notificationRepo) DeleteByIdentityID(ctx context.Context, identityID string) error {
	defer r.s.lock(ctx)()
	for id, rec := range r.s.state.notifications {
		if rec.value.IdentityID == identityID {
			delete(r.s.state.notifications, id)
		}
	}
	return nil
}
