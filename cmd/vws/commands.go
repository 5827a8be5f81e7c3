package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/app"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/wiring"
)

const defaultURLFile = "vrcworld.txt"

func (c *cli) scrapeCmd() *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "scrape [url-file]",
		Short: "Fetch every world listed in a file (one URL per line, - for stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultURLFile
			if len(args) == 1 {
				path = args[0]
			}
			urls, err := readURLFile(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			if len(urls) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No world URL found in %s\n", path)
				return nil
			}
			if cmd.Flags().Changed("delay") {
				c.cfg.Batch.Delay = delay
			}
			return c.runBatch(cmd, app.StartRunRequest{URLs: urls})
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Pause entre deux appels réseau (défaut: batch.delay)")
	return cmd
}

func (c *cli) refreshCmd() *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch stored worlds that the staleness policy marks for refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("delay") {
				c.cfg.Batch.Delay = delay
			}
			return c.runBatch(cmd, app.StartRunRequest{Refresh: true})
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Pause entre deux appels réseau (défaut: batch.delay)")
	return cmd
}

// runBatch passe par RunService: le run est enregistré comme ceux lancés via l'API.
func (c *cli) runBatch(cmd *cobra.Command, req app.StartRunRequest) error {
	ctr, err := c.container(cmd)
	if err != nil {
		return err
	}
	defer ctr.Close()

	ctx := cmd.Context()
	run, err := ctr.RunService.Start(ctx, ctx, req)
	if err != nil {
		if errors.Is(err, app.ErrEmptyRun) {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to fetch: every stored world is fresh")
			return nil
		}
		return err
	}
	ctr.RunService.Wait()

	final, err := ctr.RunService.Get(ctx, run.ID)
	if err != nil {
		return err
	}
	if final.Report == nil {
		return fmt.Errorf("run %s finished without report", run.ID)
	}
	printReport(cmd.OutOrStdout(), run.ID, *final.Report, errorLogPath(ctr))
	if final.Report.Aborted {
		fmt.Fprintln(cmd.ErrOrStderr(), "Run aborted: authentication failed, check VRCHAT_USERNAME / VRCHAT_PASSWORD or the 2FA code")
		return errAborted
	}
	return nil
}

func printReport(w io.Writer, id string, r domain.BatchReport, errorLog string) {
	fmt.Fprintf(w, "Run %s: %d worlds in %s\n", id, r.Total, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  succeeded: %d  cached: %d  failed: %d\n", r.Succeeded, r.Cached, r.Failed)
	t := r.Thumbnails
	fmt.Fprintf(w, "  thumbnails: downloaded %d, skipped %d, failed %d (success rate %.1f%%)\n",
		t.Downloaded, t.Skipped, t.Failed, t.SuccessRate()*100)
	if r.Canceled {
		fmt.Fprintln(w, "  canceled before the end of the list")
	}
	if len(r.Failures) > 0 && errorLog != "" {
		fmt.Fprintf(w, "  failures written to %s\n", errorLog)
	}
}

func errorLogPath(ctr *wiring.Container) string {
	if ctr.ErrorLog == nil {
		return ""
	}
	return ctr.ErrorLog.Path()
}

func readURLFile(stdin io.Reader, path string) ([]string, error) {
	if path == "-" {
		return app.ReadURLList(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return app.ReadURLList(f)
}

func (c *cli) loginCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate (handling the 2FA challenge) and persist the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := c.container(cmd)
			if err != nil {
				return err
			}
			defer ctr.Close()

			if force {
				err = ctr.Session.Reauthenticate(cmd.Context())
			} else {
				err = ctr.Session.EnsureAuthenticated(cmd.Context())
			}
			if err != nil {
				return err
			}
			id := ctr.Session.Identity()
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s), session valid until %s\n",
				id.DisplayName, id.ID, ctr.Session.IssuedAt().Add(ctr.Config.Session.TTL).Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Ignore la session persistée et refait un login complet")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Close the provider session and delete the persisted one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := c.container(cmd)
			if err != nil {
				return err
			}
			defer ctr.Close()

			if err := ctr.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted session and store freshness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := c.container(cmd)
			if err != nil {
				return err
			}
			defer ctr.Close()
			out := cmd.OutOrStdout()

			switch err := ctr.Session.Restore(cmd.Context()); {
			case err == nil:
				id := ctr.Session.Identity()
				fmt.Fprintf(out, "Session: authenticated as %s (%s), issued %s\n",
					id.DisplayName, id.ID, ctr.Session.IssuedAt().Format(time.RFC3339))
			case errors.Is(err, app.ErrNoSession):
				fmt.Fprintln(out, "Session: none stored")
			case errors.Is(err, app.ErrSessionExpired):
				fmt.Fprintln(out, "Session: expired, run `vws login`")
			default:
				fmt.Fprintf(out, "Session: invalid (%v)\n", err)
			}

			plan, err := ctr.Planner.Plan(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Store: %d worlds, %d fresh, %d to refresh\n", plan.Stored, plan.Fresh, len(plan.URLs))
			return nil
		},
	}
}

func (c *cli) listCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored worlds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctr, err := c.container(cmd)
			if err != nil {
				return err
			}
			defer ctr.Close()

			worlds, err := ctr.Worlds.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			policy := wiring.Policy(ctr.Config)
			now := time.Now().UTC()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSCRAPED\tFRESHNESS\tTHUMBNAIL")
			for _, w := range worlds {
				thumb := "-"
				if w.ThumbnailKey != "" {
					thumb = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", w.ID, w.Name, w.ScrapedAt.Format(time.RFC3339), policy.DecideWorld(w, now), thumb)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Nombre maximum de worlds (0 = toutes)")
	return cmd
}
