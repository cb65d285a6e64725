// ABOUTME: Client-side subcommands: config scaffolding and validation, and queries against a running server
// ABOUTME: Server queries go through the HTTP API at server.http_addr

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/stream-agents/internal/api"
	"github.com/2389/stream-agents/internal/config"
	"github.com/2389/stream-agents/internal/roster"
)

const requestTimeout = 10 * time.Second

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a starter config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "config.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteSample(path, force); err != nil {
				return err
			}
			color.New(color.FgGreen).Print("✓ ")
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file and every agent's settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			var errs []error
			for _, a := range cfg.Agents {
				if err := roster.ValidateSettings(a.Kind, a.Settings); err != nil {
					errs = append(errs, fmt.Errorf("agent %s: %w", a.Name(), err))
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			if path == "" {
				path = "built-in defaults"
			}
			color.New(color.FgGreen).Print("✓ ")
			fmt.Printf("%s is valid (%d agents)\n", path, len(cfg.Agents))
			return nil
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show coordinator, ledger and agent status of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printGet(cmd.Context(), *configPath, addr, "/api/status")
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default: server.http_addr)")
	return cmd
}

func recommendationsCmd(configPath *string) *cobra.Command {
	var addr string
	var includeApplied bool
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "List active recommendations of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/recommendations"
			if includeApplied {
				path += "?include_applied=true"
			}
			return printGet(cmd.Context(), *configPath, addr, path)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default: server.http_addr)")
	cmd.Flags().BoolVarP(&includeApplied, "applied", "a", false, "include recently applied recommendations")
	return cmd
}

func injectCmd(configPath *string) *cobra.Command {
	var addr, payload, priority, sender string
	cmd := &cobra.Command{
		Use:   "inject <agent-id> <message-type>",
		Short: "Send a host event to an agent, the coordinator, or all",
		Example: `  stream-agents inject content_curation optimize_playlist --payload '{"videos":[{"id":"v1","title":"Intro"}]}'
  stream-agents inject stream_quality quality_report_request`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.InjectRequest{Sender: sender, Type: args[1], Priority: priority}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &req.Payload); err != nil {
					return fmt.Errorf("parsing --payload: %w", err)
				}
			}
			return printPost(cmd.Context(), *configPath, addr, "/api/agents/"+url.PathEscape(args[0])+"/messages", req)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default: server.http_addr)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "JSON object payload")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low, medium or high")
	cmd.Flags().StringVar(&sender, "sender", api.HostSender, "sender id stamped on the message")
	return cmd
}

func coordinateCmd(configPath *string) *cobra.Command {
	var addr, id string
	cmd := &cobra.Command{
		Use:       "coordinate <action>",
		Short:     "Run a manual coordination action on a running server",
		ValidArgs: []string{"collect_recommendations", "resolve_conflicts", "apply_recommendation", "run_cycle"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if id != "" {
				body["id"] = id
			}
			return printPost(cmd.Context(), *configPath, addr, "/api/coordination/"+args[0], body)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "server address (default: server.http_addr)")
	cmd.Flags().StringVar(&id, "id", "", "recommendation id for apply_recommendation")
	return cmd
}

func serverURL(configPath, addr, path string) (string, error) {
	if addr == "" {
		cfg, _, err := loadConfig(configPath)
		if err != nil {
			return "", err
		}
		addr = cfg.Server.HTTPAddr
	}
	if addr == "" {
		return "", errors.New("no server address: set server.http_addr or pass --addr")
	}
	return "http://" + addr + path, nil
}

func printGet(ctx context.Context, configPath, addr, path string) error {
	u, err := serverURL(configPath, addr, path)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	return do(req)
}

func printPost(ctx context.Context, configPath, addr, path string, body any) error {
	u, err := serverURL(configPath, addr, path)
	if err != nil {
		return err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req)
}

// do sends req and pretty-prints the JSON response. Non-2xx responses are
// printed and reported as errors.
func do(req *http.Request) error {
	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var out bytes.Buffer
	if json.Indent(&out, raw, "", "  ") != nil {
		out.Reset()
		out.Write(raw)
	}
	fmt.Fprintln(os.Stdout, string(bytes.TrimSpace(out.Bytes())))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
