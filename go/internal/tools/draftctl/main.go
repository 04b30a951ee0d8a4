// Command draftctl seeds drafts and drives them from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/kpm34/cfbdraft/go/internal/config"
	"github.com/kpm34/cfbdraft/go/internal/draft/draftrpc"
	"github.com/spf13/cobra"
)

var timeNow = time.Now

type rootOptions struct {
	apiURL     string
	cronSecret string
	timeout    time.Duration
}

func (o *rootOptions) httpClient() *http.Client {
	return &http.Client{Timeout: o.timeout}
}

func (o *rootOptions) draftClient() *draftrpc.DraftServiceClient {
	return draftrpc.NewDraftServiceClient(o.httpClient(), o.apiURL)
}

func (o *rootOptions) pickClient() *draftrpc.DraftPickServiceClient {
	return draftrpc.NewDraftPickServiceClient(o.httpClient(), o.apiURL)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "draftctl",
		Short:         "Seed and drive fantasy drafts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	apiURL := os.Getenv("DRAFT_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", apiURL, "draft API base URL")
	root.PersistentFlags().StringVar(&opts.cronSecret, "cron-secret", os.Getenv("CRON_SECRET"), "shared secret for the cron routes")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(
		newSeedCmd(opts),
		newLifecycleCmd(opts, "start"),
		newLifecycleCmd(opts, "pause"),
		newLifecycleCmd(opts, "resume"),
		newLifecycleCmd(opts, "cancel"),
		newStateCmd(opts),
		newSubmitCmd(opts),
		newCronCmd(opts, "start-due", "/cron/start-due-drafts", "Start every scheduled draft whose time has come"),
		newCronCmd(opts, "sweep", "/cron/sweep-expired-picks", "Autopick for every expired clock"),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if kind := draftrpc.ErrorKind(err); kind != "" {
			fmt.Fprintf(os.Stderr, "error (%s): %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		return 1
	}
	return 0
}
