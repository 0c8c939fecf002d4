package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/raine/yandex-direct/config"
	"github.com/raine/yandex-direct/internal/cli"
	"github.com/raine/yandex-direct/internal/direct"
	"github.com/raine/yandex-direct/internal/metrics"
)

func main() {
	var resource, ids, fields string
	flag.StringVar(&resource, "resource", "tree", "What to list: campaigns, adgroups, ads or tree")
	flag.StringVar(&ids, "campaigns", "", "Comma-separated campaign IDs (required for adgroups and ads)")
	flag.StringVar(&fields, "fields", "", "Comma-separated field names (defaults per resource)")
	flag.Parse()

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		cli.Fatal("Error loading config: %v", err)
	}
	cli.SetupLogging(cfg.LogLevel)

	campaignIDs, err := parseIDs(ids)
	if err != nil {
		cli.Fatal("Invalid -campaigns: %v", err)
	}
	q := direct.EntityQuery{CampaignIDs: campaignIDs, FieldNames: splitList(fields)}

	recorder := metrics.NewRecorder()
	client, err := cli.NewClient(cfg, recorder)
	if err != nil {
		cli.Fatal("%s", cli.DescribeError(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var result any
	switch resource {
	case "campaigns":
		result, err = client.GetCampaigns(ctx, q)
	case "adgroups":
		result, err = client.GetAdGroups(ctx, q)
	case "ads":
		result, err = client.GetAds(ctx, q)
	case "tree":
		result, err = client.Entities().GetAccountTree(ctx, q)
	default:
		cli.Fatal("Unknown resource %q", resource)
	}
	cli.WriteMetrics(recorder, cfg.MetricsFile)
	if err != nil {
		cli.Fatal("Error listing %s: %s", resource, cli.DescribeError(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(result); err != nil {
		cli.Fatal("Error encoding output: %v", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a campaign ID", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
