package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/fetcher"
	"github.com/sells-group/panel-cli/internal/linker"
	"github.com/sells-group/panel-cli/internal/pipeline"
	"github.com/sells-group/panel-cli/pkg/wrds"
)

var (
	pullFrom string
	pullTo   string
	pullIDs  []string
	pullOut  string
	pullURL  string
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Acquire datasets for a panel build",
}

var pullWarehouseCmd = &cobra.Command{
	Use:   "warehouse <fundamentals|prices|links>",
	Short: "Pull a dataset from the research data warehouse",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pull"); err != nil {
			return err
		}

		client, err := wrds.New(ctx, wrds.Config{
			URL:          cfg.Warehouse.DatabaseURL,
			QueryTimeout: time.Duration(cfg.Warehouse.QuerySecs) * time.Second,
		})
		if err != nil {
			return err
		}
		defer client.Close()

		rq, err := parseRange()
		if err != nil {
			return err
		}

		switch args[0] {
		case "fundamentals":
			ds, err := client.QuarterlyFundamentals(ctx, rq)
			if err != nil {
				return err
			}
			return pipeline.WriteDatasetCSV(pullOut, ds, nil)
		case "prices":
			ds, err := client.MonthlyPrices(ctx, rq)
			if err != nil {
				return err
			}
			return pipeline.WriteDatasetCSV(pullOut, ds, nil)
		case "links":
			links, err := client.LinkHistory(ctx)
			if err != nil {
				return err
			}
			return writeLinksCSV(pullOut, links)
		default:
			return eris.Errorf("unknown warehouse dataset %q (valid: fundamentals, prices, links)", args[0])
		}
	},
}

var pullFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download a dataset file over HTTP or FTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := fetcherFor(pullURL)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(),
			time.Duration(cfg.Fetch.TimeoutSecs)*time.Second)
		defer cancel()

		n, err := f.DownloadToFile(ctx, pullURL, pullOut)
		if err != nil {
			return err
		}
		zap.L().Info("dataset downloaded",
			zap.String("url", pullURL),
			zap.String("out", pullOut),
			zap.Int64("bytes", n),
		)
		fmt.Fprintf(os.Stdout, "wrote %d bytes to %s\n", n, pullOut)
		return nil
	},
}

func fetcherFor(rawURL string) (fetcher.Fetcher, error) {
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	switch {
	case strings.HasPrefix(rawURL, "ftp://"):
		return fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Host:     cfg.Fetch.FTPHost,
			User:     cfg.Fetch.FTPUser,
			Password: cfg.Fetch.FTPPassword,
			Timeout:  timeout,
		}), nil
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:      timeout,
			RateLimiters: fetcher.DefaultRateLimiters(),
			FallbackRate: cfg.Fetch.RatePerSec,
		}), nil
	default:
		return nil, eris.Errorf("unsupported URL scheme in %q", rawURL)
	}
}

func parseRange() (wrds.RangeQuery, error) {
	rq := wrds.RangeQuery{IDs: pullIDs}
	var err error
	if pullFrom != "" {
		rq.From, err = time.Parse("2006-01-02", pullFrom)
		if err != nil {
			return rq, eris.Wrapf(err, "parse --from %q", pullFrom)
		}
	}
	if pullTo != "" {
		rq.To, err = time.Parse("2006-01-02", pullTo)
		if err != nil {
			return rq, eris.Wrapf(err, "parse --to %q", pullTo)
		}
	}
	return rq, nil
}

// writeLinksCSV writes the link history in the crosswalk layout the ingest
// side reads back. Open-ended links write 'E'.
func writeLinksCSV(path string, links []linker.Link) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"gvkey", "lpermno", "linktype", "linkdt", "linkenddt"}); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	for _, l := range links {
		end := "E"
		if !l.ValidTo.IsZero() {
			end = l.ValidTo.Format("2006-01-02")
		}
		rec := []string{l.SourceID, l.TargetID, l.Type, l.ValidFrom.Format("2006-01-02"), end}
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "flush %s", path)
	}
	return f.Close()
}

func init() {
	pullWarehouseCmd.Flags().StringVar(&pullFrom, "from", "", "range start YYYY-MM-DD")
	pullWarehouseCmd.Flags().StringVar(&pullTo, "to", "", "range end YYYY-MM-DD")
	pullWarehouseCmd.Flags().StringSliceVar(&pullIDs, "ids", nil, "identifier filter (default full cross-section)")

	pullFetchCmd.Flags().StringVar(&pullURL, "url", "", "source URL, http(s) or ftp (required)")
	_ = pullFetchCmd.MarkFlagRequired("url")

	pullCmd.PersistentFlags().StringVar(&pullOut, "out", "", "output file (required)")
	_ = pullCmd.MarkPersistentFlagRequired("out")

	pullCmd.AddCommand(pullWarehouseCmd)
	pullCmd.AddCommand(pullFetchCmd)
	rootCmd.AddCommand(pullCmd)
}
