package main

import (
	"fmt"
	"os"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/draft"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/draft/store/backend"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadSeedFile reads a draft definition from YAML.
func loadSeedFile(path string) (draft.CreateDraftRequest, error) {
	var req draft.CreateDraftRequest
	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parse seed file: %w", err)
	}
	return req, nil
}

func toRPCRequest(req draft.CreateDraftRequest) *draftrpc.CreateDraftRequest {
	out := &draftrpc.CreateDraftRequest{
		LeagueID:       req.LeagueID.String(),
		Rounds:         req.Rounds,
		OrderMode:      string(req.OrderMode),
		TimePerPickSec: req.TimePerPickSec,
		PositionLimits: req.PositionLimits,
		ScheduledAt:    req.ScheduledAt,
		Pool:           req.Pool,
	}
	if req.ID != uuid.Nil {
		out.ID = req.ID.String()
	}
	for _, p := range req.Participants {
		pt := draftrpc.Participant{DisplayName: p.DisplayName, IsBot: p.IsBot}
		if p.ID != uuid.Nil {
			pt.ID = p.ID.String()
		}
		out.Participants = append(out.Participants, pt)
	}
	return out
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var direct bool
	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Create a scheduled draft from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := loadSeedFile(args[0])
			if err != nil {
				return err
			}
			if direct {
				return seedDirect(cmd, req)
			}
			resp, err := opts.draftClient().CreateDraft(cmd.Context(), connect.NewRequest(toRPCRequest(req)))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg.Draft)
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "write to the configured store instead of calling the API")
	return cmd
}

// seedDirect writes through the draft app to the store named by STORE_BACKEND.
func seedDirect(cmd *cobra.Command, req draft.CreateDraftRequest) error {
	storeCfg, err := config.Load[config.StoreConfig]()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, closeStore, err := backend.Open(ctx, storeCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	d, err := draft.NewApp(st, nil, storeCfg.Timeout).CreateDraft(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), d)
}
