// Command fusion-core runs the roadside multi-sensor fusion pipeline:
// sensor adapters (or a simulator) feed a bounded queue, a coordinator
// drains it through the fusion processor, and fused tracks are encoded
// to the V2X wire format on a best-effort basis.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mec-fusion/internal/coordinator"
	"github.com/banshee-data/mec-fusion/internal/fusion"
	"github.com/banshee-data/mec-fusion/internal/fusionconfig"
	"github.com/banshee-data/mec-fusion/internal/fusionqueue"
	"github.com/banshee-data/mec-fusion/internal/heartbeatlog"
	"github.com/banshee-data/mec-fusion/internal/monitor"
	"github.com/banshee-data/mec-fusion/internal/sensoradapter"
	"github.com/banshee-data/mec-fusion/internal/simulator"
	"github.com/banshee-data/mec-fusion/internal/trackbatch"
	"github.com/banshee-data/mec-fusion/internal/version"
)

var (
	simMode       = flag.Bool("s", false, "Run against the scenario simulator instead of live sensors")
	simModeLong   = flag.Bool("sim", false, "Run against the scenario simulator instead of live sensors (long form of -s)")
	configPath    = flag.String("c", fusionconfig.DefaultConfigPath, "Path to JSON tuning configuration file")
	monitorSocket = flag.String("monitor-socket", "/tmp/fusion-core.sock", "Unix-domain socket path for the status monitor")
	heartbeatDB   = flag.String("heartbeat-db", "", "Optional path to a SQLite file for heartbeat metric history; disabled if empty")
	rsuID         = flag.Uint("rsu-id", 1, "RSU device ID stamped into encoded RSM packets")
	queueCapacity = flag.Int("queue-capacity", 64, "Fusion queue capacity")
	versionFlag   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("fusion-core %s (git SHA: %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	log.Printf("fusion-core %s (git SHA: %s) starting", version.Version, version.GitSHA)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("fusion-core: %v", err)
	}

	queue := fusionqueue.New(*queueCapacity)
	defer queue.Destroy()
	tracker := fusion.New(cfg)

	var heartbeats *heartbeatlog.Store
	if *heartbeatDB != "" {
		heartbeats, err = heartbeatlog.Open(*heartbeatDB)
		if err != nil {
			log.Fatalf("fusion-core: heartbeat db: %v", err)
		}
		defer heartbeats.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go watchConfigReload(ctx, hupCh, tracker)

	var wg sync.WaitGroup

	monitorSrv := monitor.New(*monitorSocket, tracker)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := monitorSrv.Serve(ctx); err != nil {
			log.Printf("fusion-core: monitor: %v", err)
		}
	}()

	if *simMode || *simModeLong {
		runSimulated(ctx, &wg, cfg, queue)
	} else {
		runLive(ctx, &wg, cfg, queue)
	}

	sink := func(buf []byte) {
		// A production deployment hands this buffer to a broadcast
		// transport; this core's scope ends at producing the bytes.
		_ = buf
	}
	coord := coordinator.New(queue, tracker, uint32(*rsuID), sink, heartbeats)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("fusion-core: coordinator exited: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("fusion-core: shutting down")
	wg.Wait()
}

func loadConfig(path string) (*fusionconfig.Config, error) {
	if _, err := os.Stat(path); err != nil {
		log.Printf("fusion-core: no config file at %s, using defaults", path)
		return fusionconfig.Empty(), nil
	}
	cfg, err := fusionconfig.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func watchConfigReload(ctx context.Context, hupCh <-chan os.Signal, tracker *fusion.Tracker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hupCh:
			cfg, err := loadConfig(*configPath)
			if err != nil {
				log.Printf("fusion-core: config reload failed, keeping previous config: %v", err)
				continue
			}
			tracker.SetConfig(cfg)
			log.Printf("fusion-core: configuration reloaded from %s", *configPath)
		}
	}
}

func runLive(ctx context.Context, wg *sync.WaitGroup, cfg *fusionconfig.Config, queue *fusionqueue.Queue) {
	port, err := sensoradapter.OpenRadarPort(cfg.GetRadarDevicePath(), cfg.GetRadarBaudRate())
	if err != nil {
		log.Printf("fusion-core: radar port unavailable, continuing without it: %v", err)
	} else {
		radar := sensoradapter.NewRadarAdapter(port, queue, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer port.Close()
			if err := radar.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("fusion-core: radar adapter exited: %v", err)
			}
		}()
	}

	if url := cfg.GetVideoRTSPURL(); url != "" {
		video := sensoradapter.NewVideoAdapter(noopVideoSource, queue, 2)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := video.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("fusion-core: video adapter exited: %v", err)
			}
		}()
	} else {
		log.Printf("fusion-core: video.rtsp_url not configured, video adapter disabled")
	}
}

// noopVideoSource stands in for a real camera pipeline, which this
// core treats as an external collaborator it only consumes through
// the VideoSource interface.
func noopVideoSource(now time.Time) []trackbatch.Measurement {
	return nil
}

func runSimulated(ctx context.Context, wg *sync.WaitGroup, cfg *fusionconfig.Config, queue *fusionqueue.Queue) {
	records, err := simulator.ParseFile(cfg.GetSimDataPath())
	if err != nil {
		log.Fatalf("fusion-core: simulator: %v", err)
	}
	player := simulator.NewPlayer(records, 1.0, true)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := player.Run(ctx, queue); err != nil && ctx.Err() == nil {
			log.Printf("fusion-core: simulator exited: %v", err)
		}
	}()
}
