package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/centroplan/vysync/internal/store"
	"github.com/centroplan/vysync/internal/sync"
	"github.com/centroplan/vysync/internal/vcom"
	"github.com/centroplan/vysync/internal/yuman"
	"github.com/centroplan/vysync/pkg/diff"
	"github.com/centroplan/vysync/pkg/logging"
)

// newSyncCommand builds the sync command, the main entry point of the
// reconciliation engine.
func (a *App) newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile VCOM and Yuman against the correlation store",
		Long: `Fetches the full state of both systems, correlates it with the store,
computes field-level differences and applies the minimal changes. Use
--dry-run to see what would happen without writing anywhere.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSync(cmd)
		},
	}

	cmd.Flags().Bool("dry-run", false, "compute and report actions without writing")
	cmd.Flags().String("system", "", "restrict the run to one VCOM system key")
	cmd.Flags().Int("client-id", 0, "Yuman client id for new sites")
	cmd.Flags().Duration("timeout", 0, "abort the run after this duration")

	return cmd
}

func (a *App) runSync(cmd *cobra.Command) error {
	ctx := logging.WithLogger(cmd.Context(), a.logger)

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	systemKey, _ := cmd.Flags().GetString("system")
	clientID, _ := cmd.Flags().GetInt("client-id")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = a.config.Timeout
	}

	vc, err := vcom.New(a.config.VCOM)
	if err != nil {
		return err
	}
	yc, err := yuman.New(a.config.Yuman)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, a.config.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()

	engine := sync.New(vc, yc, st, diff.New(), sync.Options{
		DryRun:    dryRun,
		SystemKey: systemKey,
		ClientID:  clientID,
		Timeout:   timeout,
	})

	res, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	printResult(cmd, res)
	if res.Totals().Failed > 0 {
		return fmt.Errorf("%d entities failed, see log for details", res.Totals().Failed)
	}
	return nil
}

// printResult renders the per-kind summary table.
func printResult(cmd *cobra.Command, res *sync.Result) {
	mode := ""
	if res.DryRun {
		mode = " (dry run)"
	}
	cmd.Printf("Run %s%s finished in %s\n", res.RunID, mode, res.Finished.Sub(res.Started).Round(time.Millisecond))
	cmd.Printf("%-10s %8s %8s %8s %8s %8s\n", "kind", "created", "updated", "noop", "orphans", "failed")
	for _, row := range []struct {
		name string
		c    sync.Counters
	}{
		{"sites", res.Sites},
		{"equipment", res.Equipment},
		{"tickets", res.Tickets},
	} {
		cmd.Printf("%-10s %8d %8d %8d %8d %8d\n",
			row.name, row.c.Created, row.c.Updated, row.c.NoOp, row.c.Orphaned, row.c.Failed)
	}
	if res.Conflicts > 0 {
		cmd.Printf("%d conflict(s) recorded for review\n", res.Conflicts)
	}
	for _, f := range res.Failures {
		cmd.Printf("FAILED %s %s (%s): %s\n", f.Kind, f.EntityID, f.Stage, f.Reason)
	}
}

// newStatusCommand builds the status command, a read-only view of the
// correlation store.
func (a *App) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show correlation store contents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := logging.WithLogger(cmd.Context(), a.logger)

			st, err := store.Open(ctx, a.config.DatabaseURL)
			if err != nil {
				return err
			}
			defer st.Close()

			sites, err := st.ListSites(ctx)
			if err != nil {
				return err
			}
			equipment, err := st.ListEquipment(ctx)
			if err != nil {
				return err
			}
			tickets, err := st.ListTickets(ctx)
			if err != nil {
				return err
			}

			cmd.Printf("%-10s %8s %8s %8s\n", "kind", "total", "mapped", "ignored")
			cmd.Printf("%-10s %8d %8d %8d\n", "sites", len(sites), countMappedSites(sites), countIgnoredSites(sites))
			cmd.Printf("%-10s %8d %8d %8d\n", "equipment", len(equipment), countMappedEquipment(equipment), countIgnoredEquipment(equipment))
			cmd.Printf("%-10s %8d %8d %8d\n", "tickets", len(tickets), countMappedTickets(tickets), countIgnoredTickets(tickets))
			return nil
		},
	}
}

func countMappedSites(recs []store.SiteRecord) (n int) {
	for _, r := range recs {
		if r.VcomSystemKey != "" && r.YumanSiteID != 0 {
			n++
		}
	}
	return n
}

func countIgnoredSites(recs []store.SiteRecord) (n int) {
	for _, r := range recs {
		if r.Ignore {
			n++
		}
	}
	return n
}

func countMappedEquipment(recs []store.EquipmentRecord) (n int) {
	for _, r := range recs {
		if r.VcomDeviceID != "" && r.YumanMaterialID != 0 {
			n++
		}
	}
	return n
}

func countIgnoredEquipment(recs []store.EquipmentRecord) (n int) {
	for _, r := range recs {
		if r.Ignore {
			n++
		}
	}
	return n
}

func countMappedTickets(recs []store.TicketRecord) (n int) {
	for _, r := range recs {
		if r.VcomTicketID != "" && r.YumanWorkorderID != 0 {
			n++
		}
	}
	return n
}

func countIgnoredTickets(recs []store.TicketRecord) (n int) {
	for _, r := range recs {
		if r.Ignore {
			n++
		}
	}
	return n
}

// newVersionCommand builds the version command.
func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vysync version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("vysync %s\n", a.version)
		},
	}
}
