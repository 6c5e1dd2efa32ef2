package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/entrhq/testpilot/pkg/session"
)

const defaultServerURL = "http://localhost:8000"

// apiClient talks to a running testpilot server.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/") + "/api/v1",
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) sessions(ctx context.Context) ([]session.Summary, error) {
	var out struct {
		Sessions []session.Summary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/sessions", &out); err != nil {
		return nil, err
	}
	return out.Sessions, nil
}

func (c *apiClient) session(ctx context.Context, id string) (session.Summary, error) {
	var out session.Summary
	err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), &out)
	return out, err
}

func (c *apiClient) deleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil)
}

func newSessionsCmd() *cobra.Command {
	var serverURL string

	client := func() *apiClient { return newAPIClient(serverURL) }

	cmd := &cobra.Command{
		Use:               "sessions",
		Short:             "List the sessions of a running server",
		Args:              cobra.NoArgs,
		PersistentPreRunE: skipConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := client().sessions(cmd.Context())
			if err != nil {
				return err
			}
			newRenderer(cmd.OutOrStdout(), stdoutIsTerminal()).sessions(list)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL, "Base URL of the testpilot server")

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := client().session(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client().deleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})
	return cmd
}
