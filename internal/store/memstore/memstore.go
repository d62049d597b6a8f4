// Package memstore is an in-process implementation of store.Store.
// Transactions run serially against a copy of the data and replace it on success.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
)

var _ store.Store = (*Store)(nil)

type data struct {
	wallets       map[string]models.Wallet // by id
	transactions  map[string][]models.Transaction
	users         map[string]models.User
	rewards       map[string]models.Reward
	events        map[string]models.Event
	bookings      map[string]models.Booking
	feedbacks     map[string]models.Feedback
	notifications map[string]models.AdminNotification
}

func newData() *data {
	return &data{
		wallets:       map[string]models.Wallet{},
		transactions:  map[string][]models.Transaction{},
		users:         map[string]models.User{},
		rewards:       map[string]models.Reward{},
		events:        map[string]models.Event{},
		bookings:      map[string]models.Booking{},
		feedbacks:     map[string]models.Feedback{},
		notifications: map[string]models.AdminNotification{},
	}
}

func (d *data) clone() *data {
	c := &data{
		wallets:       cloneMap(d.wallets),
		transactions:  make(map[string][]models.Transaction, len(d.transactions)),
		users:         make(map[string]models.User, len(d.users)),
		rewards:       cloneMap(d.rewards),
		events:        cloneMap(d.events),
		bookings:      cloneMap(d.bookings),
		feedbacks:     cloneMap(d.feedbacks),
		notifications: cloneMap(d.notifications),
	}
	for k, v := range d.transactions {
		c.transactions[k] = slices.Clone(v)
	}
	for k, v := range d.users {
		v.EventIDs = slices.Clone(v.EventIDs)
		c.users[k] = v
	}
	return c
}

func cloneMap[V any](m map[string]V) map[string]V {
	c := make(map[string]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Hook is called before every write with the name of the operation. A non-nil
// return aborts the write with that error.
type Hook func(op string) error

type Store struct {
	mu   *sync.Mutex
	data *data
	tx   bool
	hook *Hook
}

func New() *Store {
	var hook Hook
	return &Store{mu: &sync.Mutex{}, data: newData(), hook: &hook}
}

// FailWrites installs h on the store; nil removes it.
func (s *Store) FailWrites(h Hook) {
	defer s.lock()()
	*s.hook = h
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) write(op string) error {
	if h := *s.hook; h != nil {
		if err := h(op); err != nil {
			return status.Transient(fmt.Errorf("memstore %s: %w", op, err))
		}
	}
	return nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	view := &Store{mu: s.mu, data: s.data.clone(), tx: true, hook: s.hook}
	if err := fn(view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return status.Transient(err)
	}
	s.data = view.data
	return nil
}

func newID() string {
	return uuid.NewString()
}

// wallets

func (s *Store) GetWalletByOwner(_ context.Context, ownerID string) (*models.Wallet, error) {
	defer s.lock()()
	for _, w := range s.data.wallets {
		if w.OwnerID == ownerID {
			return &w, nil
		}
	}
	return nil, status.ErrWalletNotFound
}

func (s *Store) CreateWallet(_ context.Context, w *models.Wallet) error {
	defer s.lock()()
	if err := s.write("CreateWallet"); err != nil {
		return err
	}
	for _, existing := range s.data.wallets {
		if existing.OwnerID == w.OwnerID {
			return fmt.Errorf("wallet for owner %s already exists", w.OwnerID)
		}
	}
	if w.ID == "" {
		w.ID = newID()
	}
	s.data.wallets[w.ID] = *w
	return nil
}

func (s *Store) UpdateWalletBalance(_ context.Context, w *models.Wallet) error {
	defer s.lock()()
	if err := s.write("UpdateWalletBalance"); err != nil {
		return err
	}
	cur, ok := s.data.wallets[w.ID]
	if !ok {
		return status.ErrWalletNotFound
	}
	cur.Balance = w.Balance
	cur.UpdatedAt = time.Now().UTC()
	s.data.wallets[w.ID] = cur
	return nil
}

func (s *Store) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	defer s.lock()()
	if err := s.write("AppendTransaction"); err != nil {
		return err
	}
	if _, ok := s.data.wallets[tx.WalletID]; !ok {
		return status.ErrWalletNotFound
	}
	if tx.ID == "" {
		tx.ID = newID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	s.data.transactions[tx.WalletID] = append(s.data.transactions[tx.WalletID], *tx)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, walletID string) ([]models.Transaction, error) {
	defer s.lock()()
	return slices.Clone(s.data.transactions[walletID]), nil
}

// users

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u models.User) {
	defer s.lock()()
	u.EventIDs = slices.Clone(u.EventIDs)
	s.data.users[u.ID] = u
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	defer s.lock()()
	u, ok := s.data.users[id]
	if !ok {
		return nil, status.ErrUserNotFound
	}
	u.EventIDs = slices.Clone(u.EventIDs)
	return &u, nil
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	defer s.lock()()
	if err := s.write("UpdateUser"); err != nil {
		return err
	}
	if _, ok := s.data.users[u.ID]; !ok {
		return status.ErrUserNotFound
	}
	cp := *u
	cp.EventIDs = slices.Clone(u.EventIDs)
	s.data.users[u.ID] = cp
	return nil
}

// rewards

func (s *Store) CreateReward(_ context.Context, r *models.Reward) error {
	defer s.lock()()
	if err := s.write("CreateReward"); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = newID()
	}
	s.data.rewards[r.ID] = *r
	return nil
}

func (s *Store) GetReward(_ context.Context, id string) (*models.Reward, error) {
	defer s.lock()()
	r, ok := s.data.rewards[id]
	if !ok {
		return nil, status.ErrRewardNotFound
	}
	return &r, nil
}

func (s *Store) UpdateReward(_ context.Context, r *models.Reward) error {
	defer s.lock()()
	if err := s.write("UpdateReward"); err != nil {
		return err
	}
	if _, ok := s.data.rewards[r.ID]; !ok {
		return status.ErrRewardNotFound
	}
	s.data.rewards[r.ID] = *r
	return nil
}

func (s *Store) ListRewards(_ context.Context, f store.RewardFilter) ([]models.Reward, error) {
	defer s.lock()()
	var out []models.Reward
	for _, r := range s.data.rewards {
		if f.UserID != "" && r.UserID != f.UserID {
			continue
		}
		if f.Revealed != nil && r.IsRevealed != *f.Revealed {
			continue
		}
		if f.Redeemed != nil && r.IsRedeemed != *f.Redeemed {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (s *Store) MarkRewardsRedeemed(_ context.Context, ids []string) error {
	defer s.lock()()
	if err := s.write("MarkRewardsRedeemed"); err != nil {
		return err
	}
	for _, id := range ids {
		r, ok := s.data.rewards[id]
		if !ok {
			return fmt.Errorf("mark reward %s redeemed: %w", id, status.ErrRewardNotFound)
		}
		r.IsRedeemed = true
		s.data.rewards[id] = r
	}
	return nil
}

func (s *Store) DeleteUnredeemedRewardsExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	defer s.lock()()
	if err := s.write("DeleteUnredeemedRewardsExpiredBefore"); err != nil {
		return 0, err
	}
	n := 0
	for id, r := range s.data.rewards {
		if !r.IsRedeemed && !r.ExpiresAt.IsZero() && r.ExpiresAt.Before(cutoff) {
			delete(s.data.rewards, id)
			n++
		}
	}
	return n, nil
}

// events

// PutEvent inserts or replaces an event.
func (s *Store) PutEvent(e models.Event) {
	defer s.lock()()
	s.data.events[e.ID] = e
}

func (s *Store) GetEvent(_ context.Context, id string) (*models.Event, error) {
	defer s.lock()()
	e, ok := s.data.events[id]
	if !ok {
		return nil, status.ErrEventNotFound
	}
	return &e, nil
}

func (s *Store) ListEvents(_ context.Context) ([]models.Event, error) {
	defer s.lock()()
	out := make([]models.Event, 0, len(s.data.events))
	for _, e := range s.data.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateEvent(_ context.Context, e *models.Event) error {
	defer s.lock()()
	if err := s.write("UpdateEvent"); err != nil {
		return err
	}
	if _, ok := s.data.events[e.ID]; !ok {
		return status.ErrEventNotFound
	}
	s.data.events[e.ID] = *e
	return nil
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	defer s.lock()()
	if err := s.write("DeleteEvent"); err != nil {
		return err
	}
	if _, ok := s.data.events[id]; !ok {
		return status.ErrEventNotFound
	}
	delete(s.data.events, id)
	return nil
}

func (s *Store) EventFileKey(_ context.Context, e *models.Event) string {
	if e.Image == "" {
		return ""
	}
	return "events/" + e.ID + "/" + e.Image
}

// bookings

func (s *Store) CreateBooking(_ context.Context, b *models.Booking) error {
	defer s.lock()()
	if err := s.write("CreateBooking"); err != nil {
		return err
	}
	if b.ID == "" {
		b.ID = newID()
	}
	s.data.bookings[b.ID] = *b
	return nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	defer s.lock()()
	b, ok := s.data.bookings[id]
	if !ok {
		return nil, status.ErrBookingNotFound
	}
	return &b, nil
}

func (s *Store) UpdateBookingStatus(_ context.Context, id string, st models.BookingStatus) error {
	defer s.lock()()
	if err := s.write("UpdateBookingStatus"); err != nil {
		return err
	}
	b, ok := s.data.bookings[id]
	if !ok {
		return status.ErrBookingNotFound
	}
	b.Status = st
	s.data.bookings[id] = b
	return nil
}

func (s *Store) ListBookingsByEvent(_ context.Context, eventID string, st models.BookingStatus) ([]models.Booking, error) {
	defer s.lock()()
	var out []models.Booking
	for _, b := range s.data.bookings {
		if b.EventID == eventID && b.Status == st {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListBookedBefore(_ context.Context, day time.Time) ([]models.Booking, error) {
	defer s.lock()()
	var out []models.Booking
	for _, b := range s.data.bookings {
		if b.Status == models.BookingBooked && b.EventDate.Before(day) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CountUserBookingsSince(_ context.Context, userID string, since time.Time) (int, error) {
	defer s.lock()()
	n := 0
	for _, b := range s.data.bookings {
		if b.UserID == userID && !b.BookingDate.Before(since) {
			n++
		}
	}
	return n, nil
}

// feedback

func (s *Store) CreateFeedback(_ context.Context, f *models.Feedback) error {
	defer s.lock()()
	if err := s.write("CreateFeedback"); err != nil {
		return err
	}
	for _, existing := range s.data.feedbacks {
		if existing.BookingID == f.BookingID {
			return status.ErrFeedbackExists
		}
	}
	if f.ID == "" {
		f.ID = newID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	s.data.feedbacks[f.ID] = *f
	return nil
}

func (s *Store) GetFeedbackByBooking(_ context.Context, bookingID string) (*models.Feedback, error) {
	defer s.lock()()
	for _, f := range s.data.feedbacks {
		if f.BookingID == bookingID {
			return &f, nil
		}
	}
	return nil, status.ErrFeedbackNotFound
}

func (s *Store) UpdateFeedback(_ context.Context, f *models.Feedback) error {
	defer s.lock()()
	if err := s.write("UpdateFeedback"); err != nil {
		return err
	}
	if _, ok := s.data.feedbacks[f.ID]; !ok {
		return status.ErrFeedbackNotFound
	}
	s.data.feedbacks[f.ID] = *f
	return nil
}

// CountFeedback returns the number of feedback records.
func (s *Store) CountFeedback() int {
	defer s.lock()()
	return len(s.data.feedbacks)
}

// admin notifications

// PutAdminNotification inserts or replaces an admin notification.
func (s *Store) PutAdminNotification(n models.AdminNotification) {
	defer s.lock()()
	s.data.notifications[n.ID] = n
}

func (s *Store) DeleteAdminNotificationsForEvent(_ context.Context, eventID string) (int, error) {
	defer s.lock()()
	if err := s.write("DeleteAdminNotificationsForEvent"); err != nil {
		return 0, err
	}
	n := 0
	for id, notif := range s.data.notifications {
		if notif.EventID == eventID {
			delete(s.data.notifications, id)
			n++
		}
	}
	return n, nil
}

// CountAdminNotifications returns the number of admin notifications.
func (s *Store) CountAdminNotifications() int {
	defer s.lock()()
	return len(s.data.notifications)
}
