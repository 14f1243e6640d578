package main

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/portalmetrics/internal/analytics"
	"github.com/patrickwarner/portalmetrics/internal/models"
	"github.com/patrickwarner/portalmetrics/internal/reporting"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"report", "ads", "counter", "events", "seed"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	sub := map[string]bool{}
	for _, c := range counterCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["get"])
	assert.True(t, sub["incr"])

	flag := reportCmd.Flags().Lookup("window")
	require.NotNil(t, flag)
	assert.Equal(t, "all", flag.DefValue)
}

func TestArgumentErrorsBeforeConnecting(t *testing.T) {
	cases := [][]string{
		{"report", "--window", "fortnight"},
		{"counter", "get", "likes", "post-1"},
		{"counter", "incr", "view", "post-1", "--delta=-3"},
		{"counter", "get", "view"},
		{"events", "post-1", "--limit", "0"},
	}
	for _, args := range cases {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			rootCmd.SetArgs(args)
			rootCmd.SetOut(&bytes.Buffer{})
			assert.Error(t, rootCmd.Execute())
		})
	}
}

func TestPrintReport(t *testing.T) {
	total := 12
	r := &reporting.Report{
		Window:          reporting.Window30d,
		TotalViews:      300,
		PublishedCount:  4,
		AvgViewsPerPost: 75,
		TopN: []reporting.PostStat{
			{ID: "post-b", Title: "Second", Views: 200},
			{ID: "post-a", Title: "First", Views: 100},
		},
		PerCategory: []reporting.CategoryStat{
			{CategoryID: "news", Name: "News", PostCount: 3, Views: 250},
			{Name: "Uncategorized", PostCount: 1, Views: 50},
		},
		TotalPosts: &total,
		Degraded:   true,
		Omitted:    []string{"category:sports"},
	}

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "Window:        30d")
	assert.Contains(t, out, "Total views:   300")
	assert.Contains(t, out, "Avg views:     75.00")
	assert.Contains(t, out, "All posts:     12")
	assert.Contains(t, out, "DEGRADED, omitted: category:sports")
	assert.Less(t, strings.Index(out, "post-b"), strings.Index(out, "post-a"))
	assert.Contains(t, out, "Uncategorized")
}

func TestPrintAdReport(t *testing.T) {
	ctr := 2.5
	r := &reporting.AdReport{
		TotalAds:         2,
		ActiveAds:        1,
		TotalImpressions: 400,
		TotalClicks:      10,
		CTR:              &ctr,
		Ads: []reporting.AdStat{
			{ID: "ad-1", Position: "header", Active: true, Impressions: 400, Clicks: 10, CTR: &ctr},
			{ID: "ad-2", Position: "footer"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printAdReport(&buf, r))
	out := buf.String()
	assert.Contains(t, out, "Ads:           2 (1 active)")
	assert.Contains(t, out, "CTR:           2.50%")
	assert.Regexp(t, `ad-2\s+footer\s+false\s+0\s+0\s+-`, out)
}

func TestPrintEvents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printEvents(&buf, nil))
	assert.Equal(t, "no events\n", buf.String())

	buf.Reset()
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, printEvents(&buf, []analytics.Event{
		{Timestamp: ts, Metric: models.MetricClick, EntityID: "ad-1", Country: "DE"},
	}))
	assert.Regexp(t, `2024-05-01T10:00:00Z\s+click\s+-\s+DE\s+-\s+-`, buf.String())
}

func TestDemoDataDeterministic(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	posts1, ads1 := demoData(rand.New(rand.NewSource(7)), 30, 2, now)
	posts2, ads2 := demoData(rand.New(rand.NewSource(7)), 30, 2, now)
	assert.Equal(t, posts1, posts2)
	assert.Equal(t, ads1, ads2)

	require.Len(t, posts1, 30)
	assert.Len(t, ads1, len(demoPositions)*2)

	drafts, uncategorized := 0, 0
	for _, p := range posts1 {
		if !p.Published {
			drafts++
		}
		if p.CategoryID == "" {
			uncategorized++
		}
		assert.False(t, p.CreatedAt.After(now))
	}
	assert.Equal(t, 6, drafts)
	assert.Equal(t, 4, uncategorized)

	for _, a := range ads1 {
		assert.True(t, a.Eligible(), a.ID)
	}
}
