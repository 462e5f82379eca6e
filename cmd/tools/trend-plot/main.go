// Command trend-plot renders PNG charts of a zone's stored occupancy
// history straight from the sqlite database. Useful for offline review of
// a facility without standing up the full server.
//
// Usage:
//
//	trend-plot -db occupancy.db -zone A1 -days 7 -out plots/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/occupancy.report/internal/db"
	"github.com/banshee-data/occupancy.report/internal/parking/series"
)

var (
	dbFile    = flag.String("db", "occupancy.db", "Path to the sqlite database")
	zoneCode  = flag.String("zone", "", "Zone code to plot (empty plots every zone)")
	days      = flag.Int("days", 7, "Days of history to plot")
	outputDir = flag.String("out", "plots", "Output directory for PNG files")
	smaWindow = flag.Int("sma", 12, "Smoothing window (snapshots) for the overlay")
)

func main() {
	flag.Parse()

	database, err := db.OpenDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	var codes []string
	if *zoneCode != "" {
		codes = []string{*zoneCode}
	} else {
		zones, err := database.ListZones(false)
		if err != nil {
			log.Fatalf("failed to list zones: %v", err)
		}
		for _, zone := range zones {
			codes = append(codes, zone.ZoneCode)
		}
	}
	if len(codes) == 0 {
		log.Fatal("no zones to plot")
	}

	since := time.Now().UTC().AddDate(0, 0, -*days)
	for _, code := range codes {
		outFile, err := plotZone(database, code, since)
		if err != nil {
			log.Printf("skipping zone %s: %v", code, err)
			continue
		}
		log.Printf("wrote %s", outFile)
	}
}

func plotZone(database *db.DB, code string, since time.Time) (string, error) {
	snaps, err := database.SnapshotsSince(code, since)
	if err != nil {
		return "", fmt.Errorf("load snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return "", fmt.Errorf("no snapshots since %s", since.Format(time.RFC3339))
	}

	rawPts := make(plotter.XYs, len(snaps))
	rates := make([]float64, len(snaps))
	for i, snap := range snaps {
		rawPts[i] = plotter.XY{X: float64(snap.Timestamp.Unix()), Y: snap.OccupancyRate}
		rates[i] = snap.OccupancyRate
	}

	smoothed := series.SMA(rates, *smaWindow)
	smoothPts := make(plotter.XYs, len(smoothed))
	for i, v := range smoothed {
		smoothPts[i] = plotter.XY{X: float64(snaps[i].Timestamp.Unix()), Y: v}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Zone %s occupancy (%d snapshots)", code, len(snaps))
	p.X.Label.Text = "time"
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02 15:04"}
	p.Y.Label.Text = "occupancy %"
	p.Y.Min = 0
	p.Y.Max = 100

	rawLine, err := plotter.NewLine(rawPts)
	if err != nil {
		return "", fmt.Errorf("raw line: %w", err)
	}
	rawLine.Width = vg.Points(1)
	p.Add(rawLine)
	p.Legend.Add("raw", rawLine)

	smoothLine, err := plotter.NewLine(smoothPts)
	if err != nil {
		return "", fmt.Errorf("smoothed line: %w", err)
	}
	smoothLine.Width = vg.Points(2)
	p.Add(smoothLine)
	p.Legend.Add("smoothed", smoothLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	outFile := filepath.Join(*outputDir, fmt.Sprintf("zone_%s_trend.png", code))
	if err := p.Save(14*vg.Inch, 6*vg.Inch, outFile); err != nil {
		return "", fmt.Errorf("save plot: %w", err)
	}
	return outFile, nil
}
