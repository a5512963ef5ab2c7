package storage

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/charleshuang3/partnerlink/internal/gormw"
)

// SweepInvitations expires overdue active invitations. Verification expires
// codes lazily too, this keeps the table honest for codes nobody looks up.
func SweepInvitations(ctx context.Context, db *gormw.DB, now time.Time) {
	n, err := ExpireOverdueInvitations(ctx, db, now)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to expire overdue invitations")
		return
	}
	if n > 0 {
		logger.Info().Int64("count", n).Msg("Expired overdue invitations")
	}
}

// PurgeInvitations deletes expired and used invitations older than retention.
func PurgeInvitations(ctx context.Context, db *gormw.DB, now time.Time, retention time.Duration) {
	n, err := DeleteRetiredInvitations(ctx, db, now.Add(-retention))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to delete retired invitations")
		return
	}
	logger.Info().Int64("count", n).Msg("Deleted retired invitations")
}

// Without a sweeper, overdue invitations stay active until someone verifies
// them and retired ones stay in the database forever.
func RegisterInvitationSweeper(scheduler gocron.Scheduler, db *gormw.DB, clock clockwork.Clock, interval, retention time.Duration) {
	_, err := scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(
			func() {
				SweepInvitations(context.Background(), db, clock.Now().UTC())
			},
		),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register invitation sweeper")
	}

	_, err = scheduler.NewJob(
		gocron.CronJob(
			// 4am Daily
			"0 4 * * *",
			false,
		),
		gocron.NewTask(
			func() {
				logger.Info().Msg("Cleaning up retired invitations")
				PurgeInvitations(context.Background(), db, clock.Now().UTC(), retention)
			},
		),
	)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to register invitation cleaner")
	}
}
