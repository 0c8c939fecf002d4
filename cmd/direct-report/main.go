package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/raine/yandex-direct/config"
	"github.com/raine/yandex-direct/internal/archive"
	"github.com/raine/yandex-direct/internal/cli"
	"github.com/raine/yandex-direct/internal/direct"
	"github.com/raine/yandex-direct/internal/metrics"
	"github.com/rs/zerolog/log"
)

func main() {
	var reportType, fields, dateRange, dateFrom, dateTo, outPath, name string
	var noVAT, archiveOnly, listArchive bool
	var timeout time.Duration
	var maxPolls int

	flag.StringVar(&reportType, "type", "CAMPAIGN_PERFORMANCE_REPORT", "Report type")
	flag.StringVar(&fields, "fields", "Date,CampaignId,CampaignName,Impressions,Clicks,Cost", "Comma-separated field names")
	flag.StringVar(&dateRange, "range", string(direct.DateRangeCustom), "Date range type, e.g. CUSTOM_DATE, LAST_7_DAYS")
	flag.StringVar(&dateFrom, "from", "", "Start date YYYY-MM-DD (CUSTOM_DATE only, defaults to today)")
	flag.StringVar(&dateTo, "to", "", "End date YYYY-MM-DD (CUSTOM_DATE only, defaults to today)")
	flag.StringVar(&name, "name", "", "Report name")
	flag.BoolVar(&noVAT, "no-vat", false, "Exclude VAT from money fields")
	flag.DurationVar(&timeout, "timeout", 0, "Give up after this long (overrides DIRECT_REPORT_TIMEOUT)")
	flag.IntVar(&maxPolls, "max-polls", 0, "Give up after this many requests (overrides DIRECT_REPORT_MAX_POLLS)")
	flag.StringVar(&outPath, "out", "", "Write the TSV to this file instead of stdout")
	flag.BoolVar(&archiveOnly, "latest", false, "Print the latest archived report of -type instead of fetching")
	flag.BoolVar(&listArchive, "list", false, "List archived reports instead of fetching")
	flag.Parse()

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		cli.Fatal("Error loading config: %v", err)
	}
	cli.SetupLogging(cfg.LogLevel)

	if timeout > 0 {
		cfg.Report.Timeout = timeout
	}
	if maxPolls > 0 {
		cfg.Report.MaxPolls = maxPolls
	}

	var store *archive.SQLiteStore
	if cfg.ArchivePath != "" {
		store, err = archive.NewSQLiteStore(cfg.ArchivePath)
		if err != nil {
			cli.Fatal("Error opening archive at %s: %v", cfg.ArchivePath, err)
		}
		defer store.Close()
	}

	if listArchive {
		if store == nil {
			cli.Fatal("DIRECT_ARCHIVE_PATH is not set")
		}
		reports, err := store.List(50)
		if err != nil {
			cli.Fatal("Error reading archive: %v", err)
		}
		for _, r := range reports {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\t%d\n", r.ID, r.FetchedAt.Format(time.RFC3339),
				r.ReportType, r.DateRangeType, strings.TrimSpace(r.DateFrom+" "+r.DateTo), r.Rounds)
		}
		return
	}

	if archiveOnly {
		if store == nil {
			cli.Fatal("DIRECT_ARCHIVE_PATH is not set")
		}
		stored, err := store.Latest(reportType)
		if err != nil {
			cli.Fatal("Error reading archive: %v", err)
		}
		if stored == nil {
			cli.Fatal("No archived %s found", reportType)
		}
		writeOutput(outPath, stored.Body)
		return
	}

	req := direct.NewReportRequest(reportType, splitFields(fields)...)
	req.DateRangeType = direct.DateRangeType(strings.ToUpper(dateRange))
	req.IncludeVAT = !noVAT
	if dateFrom != "" {
		req.DateFrom = dateFrom
	}
	if dateTo != "" {
		req.DateTo = dateTo
	}
	if name != "" {
		req.ReportName = name
	}

	recorder := metrics.NewRecorder()
	defer cli.WriteMetrics(recorder, cfg.MetricsFile)

	client, err := cli.NewClient(cfg, recorder)
	if err != nil {
		cli.Fatal("%s", cli.DescribeError(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := client.GetReport(ctx, req)
	if err != nil {
		cli.WriteMetrics(recorder, cfg.MetricsFile)
		cli.Fatal("Error fetching report: %s", cli.DescribeError(err))
	}

	if store != nil {
		stored, err := store.Save(req, report)
		if err != nil {
			log.Warn().Err(err).Msg("failed to archive report")
		} else {
			log.Info().Str("id", stored.ID).Msg("report archived")
		}
		if cfg.ArchiveMaxAge > 0 {
			if n, err := store.Prune(time.Now().Add(-cfg.ArchiveMaxAge)); err != nil {
				log.Warn().Err(err).Msg("failed to prune archive")
			} else if n > 0 {
				log.Info().Int64("count", n).Msg("pruned old reports")
			}
		}
	}

	writeOutput(outPath, report.Body)

	fmt.Fprintln(os.Stderr, cli.FormatMessage(`
		Report: %s (%s)
		Requests: %d, waited %s
	`, req.ReportType, req.DateRangeType, report.Rounds, report.Waited))
}

func splitFields(s string) []string {
	var fields []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			fields = append(fields, f)
		}
	}
	return fields
}

func writeOutput(path, body string) {
	if path == "" {
		fmt.Print(body)
		return
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		cli.Fatal("Error writing %s: %v", path, err)
	}
}
