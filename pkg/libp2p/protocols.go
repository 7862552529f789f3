package libp2p

const (
	// Protocol IDs for different services
	AntiEntropyProtocol = "/goshelf/antientropy/1.0.0"

	// Pubsub topic carrying book announcements
	BooksTopic = "goshelf-books"

	// DHT namespace for overlay-wide peer discovery
	GlobalNamespace = "goshelf-global"

	// mDNS service name for LAN discovery
	ServiceName = "goshelf"

	// WireVersion is stamped on every envelope so the formats can
	// evolve without breaking older peers outright.
	WireVersion = 1
)
