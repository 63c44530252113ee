package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"EditaisScanner/internal/app"
	"EditaisScanner/internal/config"
	"EditaisScanner/internal/domain"
	"EditaisScanner/internal/logging"
)

type runFlags struct {
	days       int
	start      string
	end        string
	regions    []string
	categories []string
	sources    []string
	filters    []string
	maxPages   int
	budget     time.Duration
}

func runCommand() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one capture and print the report as JSON",
		Example: `  editaisscanner run --days 3 --sources pncp,bbmnet
  editaisscanner run --start 2024-05-01 --end 2024-05-03 --regions RJ,SP`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			req, err := flags.request(cfg.Scheduler.Location())
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := application.Close(); err != nil {
					logger.Warn("close", "error", err)
				}
			}()

			report, runErr := application.RunOnce(cmd.Context(), req)
			if runErr == nil || report.RunID != uuid.Nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return fmt.Errorf("encode report: %w", err)
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.IntVar(&flags.days, "days", 0, "look-back window in days")
	f.StringVar(&flags.start, "start", "", "window start date (YYYY-MM-DD)")
	f.StringVar(&flags.end, "end", "", "window end date (YYYY-MM-DD)")
	f.StringSliceVar(&flags.regions, "regions", nil, "region codes (UF)")
	f.StringSliceVar(&flags.categories, "categories", nil, "modality labels")
	f.StringSliceVar(&flags.sources, "sources", nil, "source names, all enabled when empty")
	f.StringSliceVar(&flags.filters, "filters", nil, "prospection filter ids")
	f.IntVar(&flags.maxPages, "max-pages", 0, "page cap per query")
	f.DurationVar(&flags.budget, "budget", 0, "time budget for the run")
	cmd.MarkFlagsMutuallyExclusive("days", "start")
	cmd.MarkFlagsMutuallyExclusive("days", "end")
	cmd.MarkFlagsRequiredTogether("start", "end")
	return cmd
}

func (f runFlags) request(loc *time.Location) (domain.RunRequest, error) {
	req := domain.RunRequest{
		Days:       f.days,
		Categories: f.categories,
		Sources:    f.sources,
		MaxPages:   f.maxPages,
		TimeBudget: f.budget,
	}
	for _, r := range f.regions {
		req.Regions = append(req.Regions, strings.ToUpper(strings.TrimSpace(r)))
	}
	if f.start != "" {
		start, err := time.ParseInLocation(time.DateOnly, f.start, loc)
		if err != nil {
			return req, fmt.Errorf("--start: %w", err)
		}
		end, err := time.ParseInLocation(time.DateOnly, f.end, loc)
		if err != nil {
			return req, fmt.Errorf("--end: %w", err)
		}
		req.Start, req.End = &start, &end
	}
	for _, raw := range f.filters {
		id, err := uuid.Parse(raw)
		if err != nil {
			return req, fmt.Errorf("--filters %q: %w", raw, err)
		}
		req.FilterIDs = append(req.FilterIDs, id)
	}
	return req, nil
}
