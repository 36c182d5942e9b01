// Package monitor implements a Unix-domain-socket status surface: on
// each connection it writes a single JSON status document and closes
// the stream. There is no framing or request body; connecting is the
// request.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/banshee-data/mec-fusion/internal/corelog"
)

// TrackCounter reports the current number of live fused tracks;
// *fusion.Tracker satisfies this directly.
type TrackCounter interface {
	TrackCount() int
}

// Status is the single document written to every connection.
type Status struct {
	Status  string `json:"status"`
	Tracks  int    `json:"tracks"`
	UptimeS int64  `json:"uptime_s"`
}

// Server listens on a Unix-domain socket and serves Status documents.
type Server struct {
	socketPath string
	tracks     TrackCounter
	startedAt  time.Time
}

// New creates a Server that will report tracks' current count once it starts serving.
func New(socketPath string, tracks TrackCounter) *Server {
	return &Server{socketPath: socketPath, tracks: tracks, startedAt: time.Now()}
}

// Serve listens on the configured socket and handles connections until
// ctx is canceled. It removes any stale socket file left behind by a
// previous, uncleanly terminated run before binding.
func (s *Server) Serve(ctx context.Context) error {
	_ = removeStaleSocket(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", s.socketPath, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("monitor: accept: %w", err)
			}
		}
		go s.handle(conn)
	}
}

// removeStaleSocket unlinks a leftover socket file from an unclean
// shutdown so Listen can bind the path again.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // nothing to remove
	}
	if info.Mode()&os.ModeSocket == 0 {
		return nil // not our socket, leave it alone
	}
	return os.Remove(path)
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	status := Status{
		Status:  "running",
		Tracks:  s.tracks.TrackCount(),
		UptimeS: int64(time.Since(s.startedAt).Seconds()),
	}
	if err := json.NewEncoder(conn).Encode(status); err != nil {
		corelog.Logf("monitor: encode status: %v", err)
	}
}
