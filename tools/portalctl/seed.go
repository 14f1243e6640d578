package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/patrickwarner/portalmetrics/internal/config"
	"github.com/patrickwarner/portalmetrics/internal/db"
	"github.com/patrickwarner/portalmetrics/internal/models"
)

var (
	seedPosts      int
	seedAdsPerSlot int
	seedValue      int64
	seedViews      bool
	seedSkipReload bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo categories, posts and ads into Postgres",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedPosts, "posts", 40, "number of posts")
	seedCmd.Flags().IntVar(&seedAdsPerSlot, "ads", 2, "ads per position")
	seedCmd.Flags().Int64Var(&seedValue, "seed", time.Now().UnixNano(), "rng seed")
	seedCmd.Flags().BoolVar(&seedViews, "views", false, "also add random view counts to Redis")
	seedCmd.Flags().BoolVar(&seedSkipReload, "skip-reload", false, "do not ask running servers to reload ads")
}

var demoCategories = []models.Category{
	{ID: "news", Name: "News", Color: "#e11d48"},
	{ID: "tech", Name: "Technology", Color: "#2563eb"},
	{ID: "sports", Name: "Sports", Color: "#16a34a"},
	{ID: "culture", Name: "Culture", Color: "#9333ea"},
}

var demoPositions = []string{"header", "sidebar", "content", "footer"}

var titleWords = []string{"Local", "Weekly", "Inside", "Future", "Hidden", "Great", "City", "Market", "Season", "Guide", "Review", "Notes"}

// demoData builds a reproducible data set for r. Every fifth post is a draft
// and every seventh is left uncategorized.
func demoData(r *rand.Rand, posts, adsPerSlot int, now time.Time) ([]models.ContentItem, []models.AdCreative) {
	items := make([]models.ContentItem, 0, posts)
	for i := 0; i < posts; i++ {
		it := models.ContentItem{
			ID:        fmt.Sprintf("post-%03d", i+1),
			Title:     fmt.Sprintf("%s %s %d", titleWords[r.Intn(len(titleWords))], titleWords[r.Intn(len(titleWords))], i+1),
			Published: i%5 != 4,
			CreatedAt: now.Add(-time.Duration(r.Intn(120*24)) * time.Hour).Truncate(time.Second),
		}
		if i%7 != 6 {
			it.CategoryID = demoCategories[r.Intn(len(demoCategories))].ID
		}
		items = append(items, it)
	}

	var ads []models.AdCreative
	for _, pos := range demoPositions {
		for j := 0; j < adsPerSlot; j++ {
			id := fmt.Sprintf("ad-%s-%d", pos, j+1)
			ads = append(ads, models.AdCreative{
				ID:        id,
				Position:  pos,
				Title:     fmt.Sprintf("%s sponsor %d", pos, j+1),
				ImageURL:  fmt.Sprintf("/static/ads/%s.png", id),
				LinkURL:   fmt.Sprintf("https://example.com/%s", id),
				Active:    true,
				Weight:    float64(1 + r.Intn(3)),
				CreatedAt: now.Add(-time.Duration(j) * 24 * time.Hour).Truncate(time.Second),
			})
		}
	}
	return items, ads
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedPosts < 0 || seedAdsPerSlot < 0 {
		return fmt.Errorf("--posts and --ads must not be negative")
	}
	cfg := config.Load()
	ctx, cancel := commandContext(cmd, 2*time.Minute)
	defer cancel()

	pg, err := db.InitPostgres(ctx, cfg.PostgresDSN, 4, 2, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()

	r := rand.New(rand.NewSource(seedValue))
	posts, ads := demoData(r, seedPosts, seedAdsPerSlot, time.Now().UTC())

	for _, c := range demoCategories {
		if err := pg.UpsertCategory(ctx, c); err != nil {
			return err
		}
	}
	for _, p := range posts {
		if err := pg.UpsertPost(ctx, p); err != nil {
			return err
		}
	}
	for _, a := range ads {
		if err := pg.UpsertAd(ctx, a); err != nil {
			return err
		}
	}
	logger.Info("seeded demo data",
		zap.Int64("seed", seedValue),
		zap.Int("categories", len(demoCategories)),
		zap.Int("posts", len(posts)),
		zap.Int("ads", len(ads)))

	if !seedViews && seedSkipReload {
		return printSeeded(cmd, len(posts), len(ads))
	}

	store, counters, err := openCounters(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer store.Close()

	if seedViews {
		for _, p := range posts {
			if !p.Published {
				continue
			}
			if _, err := counters.Increment(ctx, p.ID, models.MetricView, int64(1+r.Intn(500))); err != nil {
				return err
			}
		}
	}
	if !seedSkipReload {
		if err := store.PublishReload(ctx, db.ReloadMessage{Entity: "ads", Reason: "seed"}); err != nil {
			return err
		}
	}
	return printSeeded(cmd, len(posts), len(ads))
}

func printSeeded(cmd *cobra.Command, posts, ads int) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "seeded %d posts and %d ads (seed %d)\n", posts, ads, seedValue)
	return err
}
