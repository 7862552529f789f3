package main

import (
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/baderanaas/GoShelf/pkg/libp2p"
)

func main() {
	var port int
	var dataDir string
	var antiEntropy time.Duration
	var peerTTL time.Duration
	var verbose bool
	flag.IntVar(&port, "port", 0, "Listen port (random if not specified)")
	flag.StringVar(&dataDir, "dir", "", "Data directory (default ~/.goshelf)")
	flag.DurationVar(&antiEntropy, "anti-entropy", 30*time.Second, "Anti-entropy exchange interval")
	flag.DurationVar(&peerTTL, "peer-ttl", time.Hour, "Evict peers unseen for this long")
	flag.BoolVar(&verbose, "verbose", false, "Log background network activity")
	flag.Parse()

	logger := zap.NewNop()
	if verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
		defer logger.Sync()
	}

	err := libp2p.StartShelf(port,
		libp2p.WithDataDir(dataDir),
		libp2p.WithAntiEntropyInterval(antiEntropy),
		libp2p.WithPeerTTL(peerTTL),
		libp2p.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}
}
