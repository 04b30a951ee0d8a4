package main

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/kpm34/cfbdraft/go/internal/draft/autopick"
	"github.com/kpm34/cfbdraft/go/internal/draft/draft"
	"github.com/kpm34/cfbdraft/go/internal/draft/orchestrator"
	"github.com/kpm34/cfbdraft/go/internal/draft/order"
	"github.com/kpm34/cfbdraft/go/internal/draft/pick"
	"github.com/kpm34/cfbdraft/go/internal/draft/store"
)

// scheduleCacheSize bounds how many draft schedules stay memoized.
const scheduleCacheSize = 1024

type Services struct {
	Draft        *draft.Service
	Picks        *pick.Service
	Cron         *orchestrator.CronHandler
	Orchestrator *orchestrator.Orchestrator
}

func setupServices(st store.Store, clk clockwork.Clock, orchCfg orchestrator.Config, cronSecret string) (*Services, error) {
	// Wire up dependency injection chain
	// Store → App layer → Orchestrator → Service layer

	schedules, err := order.NewCache(st, scheduleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create schedule cache: %w", err)
	}

	pickApp := pick.NewApp(st, schedules, clk, orchCfg.StoreTimeout)
	orch := orchestrator.New(st, pickApp, autopick.NewSelector(nil), clk, orchCfg)
	draftApp := draft.NewApp(st, clk, orchCfg.StoreTimeout)

	return &Services{
		Draft:        draft.NewService(draftApp, orch, pickApp, clk),
		Picks:        pick.NewService(orch),
		Cron:         orchestrator.NewCronHandler(orch, clk, cronSecret),
		Orchestrator: orch,
	}, nil
}
