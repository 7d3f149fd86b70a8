package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/holding"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/instrument"
	"github.com/sebuszqo/FinanceLedger/internal/ledger/recurring"
)

const jobTimeout = 5 * time.Minute

type rateRefresher interface {
	Refresh(ctx context.Context, codes []string) int
}

func StartInstrumentScheduler(instrumentService instrument.Service, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := instrumentService.ImportStocks(ctx); err != nil {
			log.Error().Err(err).Msg("Error updating instruments")
			return
		}
		log.Info().Msg("Instruments updated successfully.")
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// StartRatesScheduler keeps the rate cache warm for every currency that is
// currently held, so holding reads rarely wait on the rates provider.
func StartRatesScheduler(holdingService holding.Service, refresher rateRefresher, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		refreshHeldRates(ctx, holdingService, refresher)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func refreshHeldRates(ctx context.Context, holdingService holding.Service, refresher rateRefresher) {
	codes, err := holdingService.HeldCurrencies(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Error listing held currencies")
		return
	}
	refreshed := refresher.Refresh(ctx, codes)
	log.Info().Int("requested", len(codes)).Int("refreshed", refreshed).Msg("Currency rates refreshed")
}

// StartRecurringScheduler posts due recurring transactions. A run still in
// progress makes the next tick skip.
func StartRecurringScheduler(recurringService recurring.Service, schedule string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		materializeRecurring(ctx, recurringService, time.Now().UTC())
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func materializeRecurring(ctx context.Context, recurringService recurring.Service, now time.Time) {
	posted, err := recurringService.MaterializeDue(ctx, now)
	if err != nil {
		log.Error().Err(err).Int("posted", posted).Msg("Error posting recurring transactions")
		return
	}
	log.Info().Int("posted", posted).Msg("Recurring transactions posted")
}
