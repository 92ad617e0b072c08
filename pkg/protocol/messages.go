// ABOUTME: Resonate Protocol message type definitions
// ABOUTME: Defines structs for all message types exchanged with the server
package protocol

// Message is the top-level wrapper for all protocol messages.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ClientHello is sent by clients to initiate the handshake.
type ClientHello struct {
	ClientID          string           `json:"client_id"`
	Name              string           `json:"name"`
	Version           int              `json:"version"`
	SupportedRoles    []string         `json:"supported_roles"`
	DeviceInfo        *DeviceInfo      `json:"device_info,omitempty"`
	PlayerSupport     *PlayerSupport   `json:"player_support,omitempty"`
	MetadataSupport   *MetadataSupport `json:"metadata_support,omitempty"`
	VisualizerSupport *VisualizerSupport `json:"visualizer_support,omitempty"`
}

// DeviceInfo contains device identification.
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// PlayerSupport describes this client's playback capabilities.
type PlayerSupport struct {
	SupportFormats    []AudioFormat `json:"support_formats"`
	BufferCapacity    int           `json:"buffer_capacity"`
	SupportedCommands []string      `json:"supported_commands"`

	// Legacy flat fields, carried alongside SupportFormats for servers
	// that predate the combined-format list.
	SupportCodecs      []string `json:"support_codecs,omitempty"`
	SupportChannels     []int   `json:"support_channels,omitempty"`
	SupportSampleRates  []int   `json:"support_sample_rates,omitempty"`
	SupportBitDepth     []int   `json:"support_bit_depth,omitempty"`
}

// MetadataSupport describes this client's metadata/artwork capabilities.
type MetadataSupport struct {
	SupportPictureFormats []string `json:"support_picture_formats"`
	MediaWidth            int      `json:"media_width"`
	MediaHeight           int      `json:"media_height"`
}

// VisualizerSupport describes this client's visualizer capabilities.
type VisualizerSupport struct {
	BufferCapacity int `json:"buffer_capacity"`
}

// AudioFormat describes a supported (or streamed) audio format.
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// ServerHello is the server's response to client/hello.
type ServerHello struct {
	ServerID         string   `json:"server_id"`
	Name             string   `json:"name"`
	Version          int      `json:"version"`
	ActiveRoles      []string `json:"active_roles"`
	ConnectionReason string   `json:"connection_reason"` // "discovery" or "playback"
}

// ClientState is sent as player/update to report this player's state.
type ClientState struct {
	State  string `json:"state"` // "idle", "playing", "paused"
	Volume int    `json:"volume,omitempty"`
	Muted  bool   `json:"muted,omitempty"`
}

// ServerCommand is a control command pushed by the server.
type ServerCommand struct {
	Command string `json:"command"` // "volume" or "mute"
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// StreamStartPlayer contains the audio format details for a new stream.
type StreamStartPlayer struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"` // base64-encoded
}

// StreamStart notifies the client of the stream format about to begin.
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// StreamMetadata carries basic now-playing metadata.
type StreamMetadata struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// SessionMetadata carries the fuller metadata set attached to a
// session/update message.
type SessionMetadata struct {
	Title         string `json:"title"`
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	AlbumArtist   string `json:"album_artist"`
	ArtworkURL    string `json:"artwork_url"`
	Track         int    `json:"track"`
	Year          int    `json:"year"`
	TrackDuration int    `json:"track_duration"` // seconds
}

// SessionUpdate reports a playback-group state or metadata change.
type SessionUpdate struct {
	GroupID       string           `json:"group_id"`
	PlaybackState string           `json:"playback_state"`
	Metadata      *SessionMetadata `json:"metadata,omitempty"`
}

// StreamClear instructs clients to clear buffers (used around seeks).
type StreamClear struct {
	Roles []string `json:"roles,omitempty"`
}

// StreamEnd ends streams for the specified roles (omit = all).
type StreamEnd struct {
	Roles []string `json:"roles,omitempty"`
}

// ClientGoodbye is sent before a graceful disconnect.
type ClientGoodbye struct {
	Reason string `json:"reason"` // "another_server", "shutdown", "restart", "user_request"
}

// ClientTime is sent for clock synchronization (client/time).
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // client clock, microseconds
}

// ServerTime is the response to client/time (server/time).
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // echoed client timestamp
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}
