// Package pbstore implements store.Store on top of PocketBase collections.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"ticket-ledger/internal/status"
	"ticket-ledger/internal/store"
	"ticket-ledger/models"
)

const (
	CollectionWallets            = "wallets"
	CollectionWalletTransactions = "wallet_transactions"
	CollectionRewards            = "rewards"
	CollectionEvents             = "events"
	CollectionBookings           = "bookings"
	CollectionFeedbacks          = "feedbacks"
	CollectionAdminNotifications = "admin_notifications"
	CollectionUsers              = "users"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

// RunInTx runs fn inside a PocketBase transaction. Nested calls reuse the outer transaction.
func (s *Store) RunInTx(_ context.Context, fn func(tx store.Store) error) error {
	return s.app.RunInTransaction(func(txApp core.App) error {
		return fn(&Store{app: txApp})
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func formatDate(t time.Time) string {
	return t.UTC().Format(types.DefaultDateLayout)
}

func parseDecimal(r *core.Record, field string) decimal.Decimal {
	raw := strings.TrimSpace(r.GetString(field))
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (s *Store) newRecord(collection string) (*core.Record, error) {
	col, err := s.app.FindCachedCollectionByNameOrId(collection)
	if err != nil {
		return nil, fmt.Errorf("find collection %s: %w", collection, err)
	}
	return core.NewRecord(col), nil
}

func (s *Store) find(collection, id string, notFound error) (*core.Record, error) {
	rec, err := s.app.FindRecordById(collection, id)
	if err != nil {
		if isNotFound(err) {
			return nil, notFound
		}
		return nil, status.Transient(err)
	}
	return rec, nil
}

func (s *Store) save(rec *core.Record) error {
	if err := s.app.Save(rec); err != nil {
		return status.Transient(fmt.Errorf("save %s: %w", rec.Collection().Name, err))
	}
	return nil
}

// wallets

func toWallet(r *core.Record) *models.Wallet {
	return &models.Wallet{
		ID:        r.Id,
		OwnerID:   r.GetString("owner_id"),
		Balance:   parseDecimal(r, "balance"),
		CreatedAt: r.GetDateTime("created").Time(),
		UpdatedAt: r.GetDateTime("updated").Time(),
	}
}

func (s *Store) GetWalletByOwner(_ context.Context, ownerID string) (*models.Wallet, error) {
	rec, err := s.app.FindFirstRecordByFilter(CollectionWallets, "owner_id = {:owner}", dbx.Params{"owner": ownerID})
	if err != nil {
		if isNotFound(err) {
			return nil, status.ErrWalletNotFound
		}
		return nil, status.Transient(err)
	}
	return toWallet(rec), nil
}

func (s *Store) CreateWallet(_ context.Context, w *models.Wallet) error {
	rec, err := s.newRecord(CollectionWallets)
	if err != nil {
		return err
	}
	rec.Set("owner_id", w.OwnerID)
	rec.Set("balance", w.Balance.String())
	if err := s.save(rec); err != nil {
		return err
	}
	w.ID = rec.Id
	return nil
}

func (s *Store) UpdateWalletBalance(_ context.Context, w *models.Wallet) error {
	rec, err := s.find(CollectionWallets, w.ID, status.ErrWalletNotFound)
	if err != nil {
		return err
	}
	rec.Set("balance", w.Balance.String())
	return s.save(rec)
}

func (s *Store) AppendTransaction(_ context.Context, tx *models.Transaction) error {
	rec, err := s.newRecord(CollectionWalletTransactions)
	if err != nil {
		return err
	}
	rec.Set("wallet_id", tx.WalletID)
	rec.Set("amount", tx.Amount.String())
	rec.Set("direction", string(tx.Direction))
	rec.Set("description", tx.Description)
	if err := s.save(rec); err != nil {
		return err
	}
	tx.ID = rec.Id
	tx.CreatedAt = rec.GetDateTime("created").Time()
	return nil
}

type transactionRow struct {
	ID          string         `db:"id"`
	WalletID    string         `db:"wallet_id"`
	Amount      string         `db:"amount"`
	Direction   string         `db:"direction"`
	Description string         `db:"description"`
	Created     types.DateTime `db:"created"`
}

func (s *Store) ListTransactions(_ context.Context, walletID string) ([]models.Transaction, error) {
	rows := []transactionRow{}
	err := s.app.DB().
		Select("id", "wallet_id", "amount", "direction", "description", "created").
		From(CollectionWalletTransactions).
		Where(dbx.HashExp{"wallet_id": walletID}).
		OrderBy("rowid ASC").
		All(&rows)
	if err != nil {
		return nil, status.Transient(err)
	}

	txs := make([]models.Transaction, 0, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s: bad amount %q: %w", row.ID, row.Amount, err)
		}
		txs = append(txs, models.Transaction{
			ID:          row.ID,
			WalletID:    row.WalletID,
			Amount:      amount,
			Direction:   models.Direction(row.Direction),
			Description: row.Description,
			CreatedAt:   row.Created.Time(),
		})
	}
	return txs, nil
}

// users

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	rec, err := s.find(CollectionUsers, id, status.ErrUserNotFound)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:             rec.Id,
		Name:           rec.GetString("name"),
		Email:          rec.Email(),
		LastRewardDate: rec.GetDateTime("last_reward_date").Time(),
	}
	if err := rec.UnmarshalJSONField("event_ids", &u.EventIDs); err != nil {
		u.EventIDs = nil
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u *models.User) error {
	rec, err := s.find(CollectionUsers, u.ID, status.ErrUserNotFound)
	if err != nil {
		return err
	}
	if u.LastRewardDate.IsZero() {
		rec.Set("last_reward_date", "")
	} else {
		rec.Set("last_reward_date", u.LastRewardDate)
	}
	if u.EventIDs == nil {
		rec.Set("event_ids", []string{})
	} else {
		rec.Set("event_ids", u.EventIDs)
	}
	return s.save(rec)
}

// rewards

func toReward(r *core.Record) models.Reward {
	return models.Reward{
		ID:         r.Id,
		UserID:     r.GetString("user_id"),
		Type:       models.RewardType(r.GetString("type")),
		Amount:     parseDecimal(r, "amount"),
		IsRevealed: r.GetBool("is_revealed"),
		IsRedeemed: r.GetBool("is_redeemed"),
		IssuedAt:   r.GetDateTime("issued_at").Time(),
		ExpiresAt:  r.GetDateTime("expires_at").Time(),
	}
}

func setReward(rec *core.Record, r *models.Reward) {
	rec.Set("user_id", r.UserID)
	rec.Set("type", string(r.Type))
	rec.Set("amount", r.Amount.String())
	rec.Set("is_revealed", r.IsRevealed)
	rec.Set("is_redeemed", r.IsRedeemed)
	rec.Set("issued_at", r.IssuedAt)
	if r.ExpiresAt.IsZero() {
		rec.Set("expires_at", "")
	} else {
		rec.Set("expires_at", r.ExpiresAt)
	}
}

func (s *Store) CreateReward(_ context.Context, r *models.Reward) error {
	rec, err := s.newRecord(CollectionRewards)
	if err != nil {
		return err
	}
	setReward(rec, r)
	if err := s.save(rec); err != nil {
		return err
	}
	r.ID = rec.Id
	return nil
}

func (s *Store) GetReward(_ context.Context, id string) (*models.Reward, error) {
	rec, err := s.find(CollectionRewards, id, status.ErrRewardNotFound)
	if err != nil {
		return nil, err
	}
	r := toReward(rec)
	return &r, nil
}

func (s *Store) UpdateReward(_ context.Context, r *models.Reward) error {
	rec, err := s.find(CollectionRewards, r.ID, status.ErrRewardNotFound)
	if err != nil {
		return err
	}
	setReward(rec, r)
	return s.save(rec)
}

func (s *Store) ListRewards(_ context.Context, f store.RewardFilter) ([]models.Reward, error) {
	clauses := []string{"id != ''"}
	params := dbx.Params{}
	if f.UserID != "" {
		clauses = append(clauses, "user_id = {:user}")
		params["user"] = f.UserID
	}
	if f.Revealed != nil {
		clauses = append(clauses, fmt.Sprintf("is_revealed = %t", *f.Revealed))
	}
	if f.Redeemed != nil {
		clauses = append(clauses, fmt.Sprintf("is_redeemed = %t", *f.Redeemed))
	}

	records, err := s.app.FindRecordsByFilter(CollectionRewards, strings.Join(clauses, " && "), "issued_at", 0, 0, params)
	if err != nil {
		return nil, status.Transient(err)
	}
	out := make([]models.Reward, 0, len(records))
	for _, rec := range records {
		out = append(out, toReward(rec))
	}
	return out, nil
}

func (s *Store) MarkRewardsRedeemed(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	res, err := s.app.DB().
		Update(CollectionRewards, dbx.Params{"is_redeemed": true, "updated": formatDate(time.Now())}, dbx.In("id", values...)).
		Execute()
	if err != nil {
		return status.Transient(err)
	}
	if n, err := res.RowsAffected(); err == nil && n != int64(len(ids)) {
		return fmt.Errorf("mark rewards redeemed: updated %d of %d: %w", n, len(ids), status.ErrRewardNotFound)
	}
	return nil
}

func (s *Store) DeleteUnredeemedRewardsExpiredBefore(_ context.Context, cutoff time.Time) (int, error) {
	res, err := s.app.DB().
		Delete(CollectionRewards, dbx.And(
			dbx.HashExp{"is_redeemed": false},
			dbx.NewExp("expires_at != '' AND expires_at < {:cutoff}", dbx.Params{"cutoff": formatDate(cutoff)}),
		)).
		Execute()
	if err != nil {
		return 0, status.Transient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, status.Transient(err)
	}
	return int(n), nil
}

// events

func toEvent(r *core.Record) models.Event {
	return models.Event{
		ID:                 r.Id,
		Title:              r.GetString("title"),
		UserID:             r.GetString("user_id"),
		EventCapacity:      r.GetInt("event_capacity"),
		TotalEventCapacity: r.GetInt("total_event_capacity"),
		HoldAmount:         parseDecimal(r, "hold_amount"),
		IsTemp:             r.GetBool("is_temp"),
		IsLive:             r.GetBool("is_live"),
		EventDate:          r.GetDateTime("event_date").Time(),
		EventTime:          r.GetString("event_time"),
		Image:              r.GetString("image"),
	}
}

func (s *Store) GetEvent(_ context.Context, id string) (*models.Event, error) {
	rec, err := s.find(CollectionEvents, id, status.ErrEventNotFound)
	if err != nil {
		return nil, err
	}
	e := toEvent(rec)
	return &e, nil
}

func (s *Store) ListEvents(_ context.Context) ([]models.Event, error) {
	records, err := s.app.FindAllRecords(CollectionEvents)
	if err != nil {
		return nil, status.Transient(err)
	}
	out := make([]models.Event, 0, len(records))
	for _, rec := range records {
		out = append(out, toEvent(rec))
	}
	return out, nil
}

// UpdateEvent persists the lifecycle-owned fields of e.
func (s *Store) UpdateEvent(_ context.Context, e *models.Event) error {
	rec, err := s.find(CollectionEvents, e.ID, status.ErrEventNotFound)
	if err != nil {
		return err
	}
	rec.Set("event_capacity", e.EventCapacity)
	rec.Set("hold_amount", e.HoldAmount.String())
	rec.Set("is_temp", e.IsTemp)
	rec.Set("is_live", e.IsLive)
	return s.save(rec)
}

func (s *Store) DeleteEvent(_ context.Context, id string) error {
	rec, err := s.find(CollectionEvents, id, status.ErrEventNotFound)
	if err != nil {
		return err
	}
	if err := s.app.Delete(rec); err != nil {
		return status.Transient(err)
	}
	return nil
}

func (s *Store) EventFileKey(_ context.Context, e *models.Event) string {
	if e.Image == "" {
		return ""
	}
	col, err := s.app.FindCachedCollectionByNameOrId(CollectionEvents)
	if err != nil {
		return ""
	}
	return col.Id + "/" + e.ID + "/" + e.Image
}

// bookings

func toBooking(r *core.Record) models.Booking {
	return models.Booking{
		ID:          r.Id,
		EventID:     r.GetString("event_id"),
		UserID:      r.GetString("user_id"),
		NoOfPeople:  r.GetInt("no_of_people"),
		TotalAmount: parseDecimal(r, "total_amount"),
		Status:      models.BookingStatus(r.GetString("status")),
		BookingDate: r.GetDateTime("booking_date").Time(),
		EventTitle:  r.GetString("event_title"),
		EventDate:   r.GetDateTime("event_date").Time(),
	}
}

func (s *Store) CreateBooking(_ context.Context, b *models.Booking) error {
	rec, err := s.newRecord(CollectionBookings)
	if err != nil {
		return err
	}
	rec.Set("event_id", b.EventID)
	rec.Set("user_id", b.UserID)
	rec.Set("no_of_people", b.NoOfPeople)
	rec.Set("total_amount", b.TotalAmount.String())
	rec.Set("status", string(b.Status))
	rec.Set("booking_date", b.BookingDate)
	rec.Set("event_title", b.EventTitle)
	rec.Set("event_date", b.EventDate)
	if err := s.save(rec); err != nil {
		return err
	}
	b.ID = rec.Id
	return nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	rec, err := s.find(CollectionBookings, id, status.ErrBookingNotFound)
	if err != nil {
		return nil, err
	}
	b := toBooking(rec)
	return &b, nil
}

func (s *Store) UpdateBookingStatus(_ context.Context, id string, st models.BookingStatus) error {
	rec, err := s.find(CollectionBookings, id, status.ErrBookingNotFound)
	if err != nil {
		return err
	}
	rec.Set("status", string(st))
	return s.save(rec)
}

func (s *Store) listBookings(filter string, params dbx.Params) ([]models.Booking, error) {
	records, err := s.app.FindRecordsByFilter(CollectionBookings, filter, "booking_date", 0, 0, params)
	if err != nil {
		return nil, status.Transient(err)
	}
	out := make([]models.Booking, 0, len(records))
	for _, rec := range records {
		out = append(out, toBooking(rec))
	}
	return out, nil
}

func (s *Store) ListBookingsByEvent(_ context.Context, eventID string, st models.BookingStatus) ([]models.Booking, error) {
	return s.listBookings("event_id = {:event} && status = {:status}", dbx.Params{"event": eventID, "status": string(st)})
}

func (s *Store) ListBookedBefore(_ context.Context, day time.Time) ([]models.Booking, error) {
	return s.listBookings("status = {:status} && event_date != '' && event_date < {:day}", dbx.Params{
		"status": string(models.BookingBooked),
		"day":    formatDate(day),
	})
}

func (s *Store) CountUserBookingsSince(_ context.Context, userID string, since time.Time) (int, error) {
	n, err := s.app.CountRecords(CollectionBookings,
		dbx.HashExp{"user_id": userID},
		dbx.NewExp("booking_date >= {:since}", dbx.Params{"since": formatDate(since)}),
	)
	if err != nil {
		return 0, status.Transient(err)
	}
	return int(n), nil
}

// feedback

func toFeedback(r *core.Record) *models.Feedback {
	return &models.Feedback{
		ID:        r.Id,
		BookingID: r.GetString("booking_id"),
		EventID:   r.GetString("event_id"),
		UserID:    r.GetString("user_id"),
		Status:    models.FeedbackStatus(r.GetString("status")),
		Rating:    r.GetInt("rating"),
		Comment:   r.GetString("comment"),
		CreatedAt: r.GetDateTime("created").Time(),
	}
}

func (s *Store) CreateFeedback(ctx context.Context, f *models.Feedback) error {
	if _, err := s.GetFeedbackByBooking(ctx, f.BookingID); err == nil {
		return status.ErrFeedbackExists
	} else if !errors.Is(err, status.ErrFeedbackNotFound) {
		return err
	}

	rec, err := s.newRecord(CollectionFeedbacks)
	if err != nil {
		return err
	}
	rec.Set("booking_id", f.BookingID)
	rec.Set("event_id", f.EventID)
	rec.Set("user_id", f.UserID)
	rec.Set("status", string(f.Status))
	rec.Set("rating", f.Rating)
	rec.Set("comment", f.Comment)
	if err := s.save(rec); err != nil {
		return err
	}
	f.ID = rec.Id
	f.CreatedAt = rec.GetDateTime("created").Time()
	return nil
}

func (s *Store) GetFeedbackByBooking(_ context.Context, bookingID string) (*models.Feedback, error) {
	rec, err := s.app.FindFirstRecordByFilter(CollectionFeedbacks, "booking_id = {:booking}", dbx.Params{"booking": bookingID})
	if err != nil {
		if isNotFound(err) {
			return nil, status.ErrFeedbackNotFound
		}
		return nil, status.Transient(err)
	}
	return toFeedback(rec), nil
}

func (s *Store) UpdateFeedback(_ context.Context, f *models.Feedback) error {
	rec, err := s.find(CollectionFeedbacks, f.ID, status.ErrFeedbackNotFound)
	if err != nil {
		return err
	}
	rec.Set("status", string(f.Status))
	rec.Set("rating", f.Rating)
	rec.Set("comment", f.Comment)
	return s.save(rec)
}

// admin notifications

func (s *Store) DeleteAdminNotificationsForEvent(_ context.Context, eventID string) (int, error) {
	res, err := s.app.DB().
		Delete(CollectionAdminNotifications, dbx.HashExp{"event_id": eventID}).
		Execute()
	if err != nil {
		return 0, status.Transient(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, status.Transient(err)
	}
	return int(n), nil
}
