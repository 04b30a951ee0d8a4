package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kpm34/cfbdraft/go/internal/draft/orchestrator"
	"github.com/spf13/cobra"
)

func newCronCmd(opts *rootOptions, use, path, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(opts.apiURL, "/") + path
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			if opts.cronSecret != "" {
				req.Header.Set(orchestrator.CronSecretHeader, opts.cronSecret)
			}

			resp, err := opts.httpClient().Do(req)
			if err != nil {
				return fmt.Errorf("call %s: %w", path, err)
			}
			defer resp.Body.Close()

			var body map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode %s response: %w", path, err)
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%s returned %d: %v", path, resp.StatusCode, body["error"])
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}
