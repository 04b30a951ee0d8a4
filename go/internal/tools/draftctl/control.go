package main

import (
	"fmt"

	"connectrpc.com/connect"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/kpm34/cfbdraft/go/internal/idgen"
	"github.com/spf13/cobra"
)

func newLifecycleCmd(opts *rootOptions, action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " DRAFT_ID",
		Short: fmt.Sprintf("%s a draft", action),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.draftClient()
			ctx := cmd.Context()
			id := args[0]

			var (
				out any
				err error
			)
			switch action {
			case "start":
				var resp *connect.Response[draftrpc.StartDraftResponse]
				if resp, err = client.StartDraft(ctx, connect.NewRequest(&draftrpc.StartDraftRequest{DraftID: id})); err == nil {
					out = resp.Msg
				}
			case "pause":
				var resp *connect.Response[draftrpc.PauseDraftResponse]
				if resp, err = client.PauseDraft(ctx, connect.NewRequest(&draftrpc.PauseDraftRequest{DraftID: id})); err == nil {
					out = resp.Msg.State
				}
			case "resume":
				var resp *connect.Response[draftrpc.ResumeDraftResponse]
				if resp, err = client.ResumeDraft(ctx, connect.NewRequest(&draftrpc.ResumeDraftRequest{DraftID: id})); err == nil {
					out = resp.Msg.State
				}
			case "cancel":
				var resp *connect.Response[draftrpc.CancelDraftResponse]
				if resp, err = client.CancelDraft(ctx, connect.NewRequest(&draftrpc.CancelDraftRequest{DraftID: id})); err == nil {
					out = resp.Msg.Draft
				}
			default:
				return fmt.Errorf("unknown action %q", action)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newStateCmd(opts *rootOptions) *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "state DRAFT_ID",
		Short: "Show the draft's state and clock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.draftClient()
			if full {
				resp, err := client.GetDraft(cmd.Context(), connect.NewRequest(&draftrpc.GetDraftRequest{DraftID: args[0]}))
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Msg)
			}
			resp, err := client.GetDraftState(cmd.Context(), connect.NewRequest(&draftrpc.GetDraftStateRequest{DraftID: args[0]}))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "include participants and the pick schedule")
	return cmd
}

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "submit DRAFT_ID PARTICIPANT_ID PLAYER_ID",
		Short: "Submit a pick",
		Long:  "Submit a pick. Re-running with the same --token replays the original result instead of picking twice.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = idgen.Token("cli", timeNow())
				fmt.Fprintf(cmd.ErrOrStderr(), "idempotency key: %s\n", token)
			}
			resp, err := opts.pickClient().SubmitPick(cmd.Context(), token, &draftrpc.SubmitPickRequest{
				DraftID:       args[0],
				ParticipantID: args[1],
				PlayerID:      args[2],
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Msg)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "idempotency key, generated when empty")
	return cmd
}
