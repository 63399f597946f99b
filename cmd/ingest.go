package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/config"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/metrics"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/pipeline"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/resilience"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/runlog"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/store"
	"github.com/poddarraghavnandan-hash/CityPass-sub001/internal/venue"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run venue ingestion for one or more cities",
	Example: `  venues ingest --city "New York" --type full
  venues ingest --all-cities --type incremental`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cityNames, _ := cmd.Flags().GetStringSlice("city")
		all, _ := cmd.Flags().GetBool("all-cities")
		typeFlag, _ := cmd.Flags().GetString("type")

		runType, err := venue.ParseRunType(typeFlag)
		if err != nil {
			return err
		}
		catalog, err := config.LoadCatalog(cfg.Cities.File)
		if err != nil {
			return err
		}
		cities, err := selectCities(catalog, cityNames, all)
		if err != nil {
			return err
		}

		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := store.Migrate(ctx, pool); err != nil {
			return err
		}

		graphWriter := openGraph(ctx, cfg.Neo4j)
		defer graphWriter.Close(context.WithoutCancel(ctx)) //nolint:errcheck

		st := store.NewPostgres(pool)
		m := metrics.New(cfg.Metrics.Namespace)
		breakers := resilience.NewBreakers(resilience.DefaultBreakerConfig())
		p := pipeline.New(pipeline.Deps{
			Store:          st,
			Runs:           runlog.NewRecorder(pool),
			Sources:        buildRegistry(*cfg, st, breakers),
			Graph:          graphWriter,
			Metrics:        m,
			Geocoder:       buildGeocoder(*cfg),
			MaxGeocodes:    cfg.Pipeline.MaxGeocodes,
			GeocodeRetries: cfg.Sources.MaxRetries,
			Breakers:       breakers,
			Locate:         newNeighborhoodLocator().Locate,
			MatchThreshold: cfg.Pipeline.MatchThreshold,
		})

		results, err := ingestCities(ctx, p, cities, runType, cfg.Pipeline.MaxConcurrentCities)
		for _, r := range results {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}

		if cfg.Metrics.TextfilePath != "" {
			if werr := m.WriteTextfile(cfg.Metrics.TextfilePath); werr != nil {
				zap.L().Warn("metrics textfile not written", zap.Error(werr))
			}
		}
		return err
	},
}

func init() {
	ingestCmd.Flags().StringSlice("city", nil, "city name from the catalog (repeatable)")
	ingestCmd.Flags().Bool("all-cities", false, "ingest every city in the catalog")
	ingestCmd.Flags().String("type", "incremental", "run type: full or incremental")
	rootCmd.AddCommand(ingestCmd)
}

// selectCities resolves the --city and --all-cities flags against the catalog.
func selectCities(catalog *config.Catalog, names []string, all bool) ([]venue.City, error) {
	if all {
		if len(names) > 0 {
			return nil, eris.New("use either --city or --all-cities, not both")
		}
		return catalog.Cities, nil
	}
	if len(names) == 0 {
		return nil, eris.New("--city or --all-cities is required")
	}

	cities := make([]venue.City, 0, len(names))
	for _, n := range names {
		c, err := catalog.City(n)
		if err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, nil
}

// cityRunner is the part of the pipeline ingestCities drives.
type cityRunner interface {
	Run(ctx context.Context, city venue.City, runType venue.RunType) (pipeline.State, error)
}

// ingestCities runs each city as an independent run, at most limit at a
// time. A city that could not be recorded or finished FAILED is reported
// in the returned error; the other cities still run.
func ingestCities(ctx context.Context, p cityRunner, cities []venue.City, runType venue.RunType, limit int) ([]string, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))

	var (
		mu     sync.Mutex
		lines  = make([]string, len(cities))
		failed []string
	)
	for i, city := range cities {
		g.Go(func() error {
			s, err := p.Run(gctx, city, runType)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				zap.L().Error("ingest failed", zap.String("city", city.Name), zap.Error(err))
				lines[i] = fmt.Sprintf("%s: error: %v", city.Name, err)
				failed = append(failed, city.Name)
			default:
				lines[i] = summarize(s)
				if s.Run.Status == venue.StatusFailed {
					failed = append(failed, city.Name)
				}
			}
			// One city never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) > 0 {
		return lines, eris.Errorf("ingest failed for: %s", strings.Join(failed, ", "))
	}
	return lines, nil
}

func summarize(s pipeline.State) string {
	return fmt.Sprintf("%s: run %s %s (raw=%d candidates=%d created=%d updated=%d errors=%d)",
		s.City.Name, s.Run.ID, s.Run.Status,
		s.Stats.RawTotal, s.Stats.NormalizedTotal, s.Stats.VenuesCreated, s.Stats.VenuesUpdated, len(s.Errors))
}
