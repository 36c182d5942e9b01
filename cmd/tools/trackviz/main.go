// Command trackviz renders an HTML trajectory chart from a recorded
// fused-track snapshot log, a downstream diagnostic consumer of the
// fusion core's output. The input is JSON Lines, one fusion.Snapshot
// array per fusion tick, the shape a coordinator would write if asked
// to log its snapshots for later diagnostics.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mec-fusion/internal/fusion"
)

var (
	inputPath  = flag.String("input", "", "Path to a JSON-Lines snapshot log (one []fusion.Snapshot per line)")
	outputPath = flag.String("output", "trackviz.html", "Path to write the rendered HTML chart")
)

func main() {
	flag.Parse()
	if *inputPath == "" {
		log.Fatal("trackviz: -input is required")
	}

	byTrack, err := readTrajectories(*inputPath)
	if err != nil {
		log.Fatalf("trackviz: %v", err)
	}
	if len(byTrack) == 0 {
		log.Fatal("trackviz: no snapshots found in input")
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		log.Fatalf("trackviz: create %s: %v", *outputPath, err)
	}
	defer out.Close()

	if err := renderChart(byTrack, out); err != nil {
		log.Fatalf("trackviz: render: %v", err)
	}
	log.Printf("trackviz: wrote %s (%d tracks)", *outputPath, len(byTrack))
}

func readTrajectories(path string) (map[uint64][]fusion.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	byTrack := make(map[uint64][]fusion.Snapshot)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var snap []fusion.Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			return nil, fmt.Errorf("decode line: %w", err)
		}
		for _, s := range snap {
			byTrack[s.GlobalID] = append(byTrack[s.GlobalID], s)
		}
	}
	return byTrack, scanner.Err()
}

func renderChart(byTrack map[uint64][]fusion.Snapshot, out *os.File) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Fused track trajectories"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (m)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "y (m)"}),
	)

	for id, points := range byTrack {
		data := make([]opts.ScatterData, 0, len(points))
		for _, p := range points {
			data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("track %d", id), data)
	}

	return scatter.Render(out)
}
