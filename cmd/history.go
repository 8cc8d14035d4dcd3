package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"grimm.is/ptables/internal/audit"
	"grimm.is/ptables/internal/brand"
	"grimm.is/ptables/internal/firewall"
)

// DefaultHistoryDB is the run history database used by apply --history.
func DefaultHistoryDB() string {
	return filepath.Join(brand.GetLogDir(), "history.db")
}

// RunHistory lists recent runs, or the commands of one run when id is set.
func RunHistory(out io.Writer, dbPath, id string, limit int) error {
	store, err := audit.Open(dbPath, 0)
	if err != nil {
		return err
	}
	defer store.Close()

	if id != "" {
		run, err := store.Get(id)
		if err != nil {
			return err
		}
		Printer.Fprintf(out, "Run %s (%s), exit code %d\n", run.ID, run.Config, run.ExitCode)
		for _, c := range run.Commands {
			fmt.Fprintf(out, "%s %s\n", firewall.IPVersion(c.Version).Command(), c.Text)
		}
		return nil
	}

	runs, err := store.Recent(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		Printer.Fprintln(out, "No runs recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tCONFIG\tDRY RUN\tEXIT\tSKIPPED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\n",
			r.ID, r.Started.Local().Format(time.DateTime), r.Config, r.DryRun, r.ExitCode, r.Skipped)
	}
	return w.Flush()
}
