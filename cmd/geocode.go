package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/census-geocoder/pkg/geocode"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode [address]",
	Short: "Geocode an address",
	Long: `Geocode a single address. Pass a free-form address as the argument, or use
--street, --city, --state and --zip for a structured query.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fields := make(map[string]string, 4)
		for _, name := range []string{geocode.FieldStreet, geocode.FieldCity, geocode.FieldState, geocode.FieldZip} {
			if v, _ := cmd.Flags().GetString(name); v != "" {
				fields[name] = v
			}
		}
		q, err := buildQuery(args, fields)
		if err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		output, _ := cmd.Flags().GetString("output")
		benchmark, _ := cmd.Flags().GetString("benchmark")

		if !validOutput(output) {
			return eris.Errorf("geocode: unknown output format %q", output)
		}

		geoCfg := cfg.Geocode
		if benchmark != "" {
			geoCfg.Benchmark = benchmark
		}
		opts, err := geoCfg.Options()
		if err != nil {
			return err
		}

		locs, err := runGeocode(ctx, geocode.NewCensus(opts...), q, all, timeout)
		if err != nil {
			return err
		}
		return writeLocations(cmd.OutOrStdout(), output, locs)
	},
}

// buildQuery picks a FreeForm query from args or a Structured one from fields.
func buildQuery(args []string, fields map[string]string) (geocode.Query, error) {
	hasAddress := len(args) > 0 && strings.TrimSpace(args[0]) != ""
	switch {
	case hasAddress && len(fields) > 0:
		return nil, eris.New("geocode: pass either an address argument or structured flags, not both")
	case hasAddress:
		return geocode.FreeForm(args[0]), nil
	case len(fields) > 0:
		return geocode.Structured(fields), nil
	default:
		return nil, eris.New("geocode: an address argument or at least one of --street, --city, --state, --zip is required")
	}
}

// runGeocode performs the lookup. A zero timeout keeps the configured default.
func runGeocode(ctx context.Context, g *geocode.Census, q geocode.Query, all bool, timeout time.Duration) ([]geocode.Location, error) {
	var callOpts []geocode.CallOption
	if timeout > 0 {
		callOpts = append(callOpts, geocode.WithCallTimeout(timeout))
	}

	log := zap.L().With(zap.String("command", "geocode"), zap.String("benchmark", g.Benchmark()))

	if all {
		locs, err := g.GeocodeAll(ctx, q, callOpts...)
		if err != nil {
			return nil, eris.Wrap(err, "geocode: lookup")
		}
		log.Info("geocode complete", zap.Int("matches", len(locs)))
		return locs, nil
	}

	loc, err := g.Geocode(ctx, q, callOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: lookup")
	}
	if loc == nil {
		log.Info("geocode complete", zap.Int("matches", 0))
		return nil, nil
	}
	log.Info("geocode complete", zap.Int("matches", 1))
	return []geocode.Location{*loc}, nil
}

func init() {
	geocodeCmd.Flags().String(geocode.FieldStreet, "", "street address for a structured query")
	geocodeCmd.Flags().String(geocode.FieldCity, "", "city for a structured query")
	geocodeCmd.Flags().String(geocode.FieldState, "", "state for a structured query")
	geocodeCmd.Flags().String(geocode.FieldZip, "", "ZIP code for a structured query")
	geocodeCmd.Flags().Bool("all", false, "return every match instead of the first")
	geocodeCmd.Flags().Duration("timeout", 0, "per-request timeout (default from config)")
	geocodeCmd.Flags().String("benchmark", "", "benchmark override, e.g. Public_AR_Census2020")
	geocodeCmd.Flags().StringP("output", "o", outputJSON, "output format: json, yaml or geojson")
	rootCmd.AddCommand(geocodeCmd)
}
