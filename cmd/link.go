package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/panel-cli/internal/ingest"
	"github.com/sells-group/panel-cli/internal/linker"
)

var (
	linkTablePath    string
	linkPriority     []string
	linkEndExclusive bool
	linkAsOf         string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Inspect an identifier linking table",
}

func loadLinkTable() (*linker.Table, error) {
	priority := linkPriority
	if len(priority) == 0 {
		priority = cfg.Link.Priority
	}
	return ingest.LoadLinksFile(linkTablePath, linker.Options{
		Priority:     priority,
		EndExclusive: linkEndExclusive || cfg.Link.EndExclusive,
	})
}

var linkResolveCmd = &cobra.Command{
	Use:   "resolve <source-id>",
	Short: "Resolve one identifier at a date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadLinkTable()
		if err != nil {
			return err
		}

		asOf := time.Now().UTC()
		if linkAsOf != "" {
			asOf, err = time.Parse("2006-01-02", linkAsOf)
			if err != nil {
				return eris.Wrapf(err, "parse --as-of %q", linkAsOf)
			}
		}

		target, err := table.Resolve(args[0], asOf)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, target)
		return nil
	},
}

var linkCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Audit the table for same-rank overlapping windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := loadLinkTable()
		if err != nil {
			return err
		}

		overlaps := table.Overlaps()
		if len(overlaps) == 0 {
			fmt.Fprintf(os.Stdout, "OK: %d links, no same-rank overlaps\n", table.Len())
			return nil
		}

		for _, ov := range overlaps {
			fmt.Fprintf(os.Stdout, "%s: %s [%s] overlaps %s [%s]\n",
				ov.SourceID,
				ov.A.TargetID, formatWindow(ov.A),
				ov.B.TargetID, formatWindow(ov.B),
			)
		}
		return eris.Errorf("link check: %d overlapping windows", len(overlaps))
	},
}

func formatWindow(l linker.Link) string {
	from := l.ValidFrom.Format("2006-01-02")
	if l.ValidTo.IsZero() {
		return from + "..open"
	}
	return from + ".." + l.ValidTo.Format("2006-01-02")
}

func init() {
	linkCmd.PersistentFlags().StringVar(&linkTablePath, "links", "", "crosswalk CSV file (required)")
	linkCmd.PersistentFlags().StringSliceVar(&linkPriority, "priority", nil, "link type priority (default from config)")
	linkCmd.PersistentFlags().BoolVar(&linkEndExclusive, "end-exclusive", false, "treat window end dates as exclusive")
	_ = linkCmd.MarkPersistentFlagRequired("links")

	linkResolveCmd.Flags().StringVar(&linkAsOf, "as-of", "", "resolution date YYYY-MM-DD (default today)")

	linkCmd.AddCommand(linkResolveCmd)
	linkCmd.AddCommand(linkCheckCmd)
	rootCmd.AddCommand(linkCmd)
}
