package cmd

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch every city once and print the batch",
		Long: `Polls each configured city once, archiving every raw response, and
prints the normalized batch as a table. Nothing is written to the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			batch, err := a.Poller().FetchAll(cmd.Context(), a.Config().Cities)
			if err != nil {
				a.Logger().Error("fetch failed", zap.Error(err))
				return nil
			}
			return printBatch(cmd.OutOrStdout(), batch)
		},
	}
}

var batchHeader = []string{
	"station", "city", "aqi", "pm25", "pm10", "co", "no2", "o3", "so2",
	"dominentpol", "temperature", "humidity", "wind_speed", "pressure",
	"latitude", "longitude", "timestamp",
}

func printBatch(w io.Writer, batch *airquality.Batch) error {
	if batch.Len() == 0 {
		_, err := fmt.Fprintln(w, "No data fetched.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeRow(tw, batchHeader)
	for _, r := range batch.Records {
		writeRow(tw, []string{
			r.Station, r.City,
			formatFloat(r.AQI), formatFloat(r.PM25), formatFloat(r.PM10), formatFloat(r.CO),
			formatFloat(r.NO2), formatFloat(r.O3), formatFloat(r.SO2),
			r.Dominentpol,
			formatFloat(r.Temperature), formatFloat(r.Humidity), formatFloat(r.WindSpeed), formatFloat(r.Pressure),
			formatFloat(r.Latitude), formatFloat(r.Longitude),
			r.Timestamp.Format(airquality.TimestampLayout),
		})
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("print batch: %w", err)
	}
	return nil
}

func writeRow(w io.Writer, cols []string) {
	for i, c := range cols {
		if i > 0 {
			_, _ = io.WriteString(w, "\t")
		}
		_, _ = io.WriteString(w, c)
	}
	_, _ = io.WriteString(w, "\n")
}

func formatFloat(v *float64) string {
	if v == nil {
		return "NaN"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
