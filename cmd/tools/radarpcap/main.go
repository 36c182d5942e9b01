// Command radarpcap replays a captured radar serial-over-UDP bridge
// capture through internal/radarframe, for reproducing resync and
// checksum bugs from a field recording without the physical sensor.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/mec-fusion/internal/radarframe"
)

var (
	pcapPath = flag.String("pcap", "", "Path to a pcap capture of the radar's serial-over-UDP bridge traffic")
	udpPort  = flag.Uint("udp-port", 5000, "UDP destination port the radar bridge used in the capture")
)

func main() {
	flag.Parse()
	if *pcapPath == "" {
		log.Fatal("radarpcap: -pcap is required")
	}

	f, err := os.Open(*pcapPath)
	if err != nil {
		log.Fatalf("radarpcap: open %s: %v", *pcapPath, err)
	}
	defer f.Close()

	reader, err := pcapgo.NewReader(f)
	if err != nil {
		log.Fatalf("radarpcap: %v", err)
	}

	parser := radarframe.New()
	packetCount, detectionCount := 0, 0
	start := time.Now()

	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("radarpcap: read packet: %v", err)
		}
		packetCount++

		payload := extractUDPPayload(data, reader.LinkType(), uint16(*udpPort))
		if len(payload) == 0 {
			continue
		}

		parser.FeedAll(payload, func(d radarframe.Detection) {
			detectionCount++
			fmt.Printf("target=%d range=%.1fm angle=%.1fdeg vel=%.1fm/s rcs=%.1fdB\n",
				d.TargetID, d.RangeM, d.AngleDeg, d.VelocityMS, d.RCSdB)
		})
	}

	log.Printf("radarpcap: %d packets, %d detections in %v", packetCount, detectionCount, time.Since(start))
}

func extractUDPPayload(data []byte, linkType layers.LinkType, port uint16) []byte {
	packet := gopacket.NewPacket(data, linkType, gopacket.NoCopy)
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok {
		return nil
	}
	if uint16(udp.DstPort) != port {
		return nil
	}
	return udp.Payload
}
