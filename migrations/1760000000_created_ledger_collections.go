package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func timestamps() []core.Field {
	return []core.Field{
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	}
}

func init() {
	m.Register(func(app core.App) error {
		wallets := core.NewBaseCollection("wallets")
		wallets.Fields.Add(
			&core.TextField{Name: "owner_id", Required: true, Max: 64},
			&core.TextField{Name: "balance", Max: 64},
		)
		wallets.Fields.Add(timestamps()...)
		wallets.AddIndex("idx_wallets_owner_id", true, "owner_id", "")

		walletTransactions := core.NewBaseCollection("wallet_transactions")
		walletTransactions.Fields.Add(
			&core.TextField{Name: "wallet_id", Required: true},
			&core.TextField{Name: "amount", Required: true, Max: 64},
			&core.SelectField{Name: "direction", Required: true, MaxSelect: 1, Values: []string{"credit", "debit"}},
			&core.TextField{Name: "description", Max: 500},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		walletTransactions.AddIndex("idx_wallet_transactions_wallet_id", false, "wallet_id", "")

		rewards := core.NewBaseCollection("rewards")
		rewards.Fields.Add(
			&core.TextField{Name: "user_id", Required: true},
			&core.SelectField{Name: "type", Required: true, MaxSelect: 1, Values: []string{"win", "lose"}},
			&core.TextField{Name: "amount", Max: 64},
			&core.BoolField{Name: "is_revealed"},
			&core.BoolField{Name: "is_redeemed"},
			&core.DateField{Name: "issued_at"},
			&core.DateField{Name: "expires_at"},
		)
		rewards.Fields.Add(timestamps()...)
		rewards.AddIndex("idx_rewards_user_id", false, "user_id", "")

		events := core.NewBaseCollection("events")
		events.Fields.Add(
			&core.TextField{Name: "title", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.NumberField{Name: "event_capacity", OnlyInt: true},
			&core.NumberField{Name: "total_event_capacity", OnlyInt: true},
			&core.TextField{Name: "hold_amount", Max: 64},
			&core.BoolField{Name: "is_temp"},
			&core.BoolField{Name: "is_live"},
			&core.DateField{Name: "event_date"},
			&core.TextField{Name: "event_time", Max: 64},
			&core.FileField{Name: "image", MaxSelect: 1, MaxSize: 5 << 20, MimeTypes: []string{"image/jpeg", "image/png", "image/webp"}},
		)
		events.Fields.Add(timestamps()...)

		bookings := core.NewBaseCollection("bookings")
		bookings.Fields.Add(
			&core.TextField{Name: "event_id", Required: true},
			&core.TextField{Name: "user_id", Required: true},
			&core.NumberField{Name: "no_of_people", OnlyInt: true},
			&core.TextField{Name: "total_amount", Max: 64},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"Booked", "Cancelled", "Completed"}},
			&core.DateField{Name: "booking_date"},
			&core.TextField{Name: "event_title"},
			&core.DateField{Name: "event_date"},
		)
		bookings.Fields.Add(timestamps()...)
		bookings.AddIndex("idx_bookings_event_id", false, "event_id", "")
		bookings.AddIndex("idx_bookings_user_id", false, "user_id", "")

		feedbacks := core.NewBaseCollection("feedbacks")
		feedbacks.Fields.Add(
			&core.TextField{Name: "booking_id", Required: true},
			&core.TextField{Name: "event_id"},
			&core.TextField{Name: "user_id"},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"Pending", "Completed"}},
			&core.NumberField{Name: "rating", OnlyInt: true},
			&core.TextField{Name: "comment", Max: 2000},
		)
		feedbacks.Fields.Add(timestamps()...)
		feedbacks.AddIndex("idx_feedbacks_booking_id", true, "booking_id", "")

		notifications := core.NewBaseCollection("admin_notifications")
		notifications.Fields.Add(
			&core.TextField{Name: "event_id"},
			&core.TextField{Name: "message"},
			&core.TextField{Name: "status"},
		)
		notifications.Fields.Add(timestamps()...)
		notifications.AddIndex("idx_admin_notifications_event_id", false, "event_id", "")

		for _, c := range []*core.Collection{wallets, walletTransactions, rewards, events, bookings, feedbacks, notifications} {
			if err := app.Save(c); err != nil {
				return err
			}
		}
		return nil
	}, func(app core.App) error {
		names := []string{"admin_notifications", "feedbacks", "bookings", "events", "rewards", "wallet_transactions", "wallets"}
		for _, name := range names {
			collection, err := app.FindCollectionByNameOrId(name)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}
		return nil
	})
}
