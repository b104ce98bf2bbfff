package notification

// Embed colors, Discord decimal color space.
const (
	ColorNewSpecies = 0xFFD700 // gold
	ColorDetection  = 0x3498DB // blue
	ColorSummary    = 0x2ECC71 // green
	ColorError      = 0xE74C3C // red
	ColorWarning    = 0xF39C12 // amber
	ColorTest       = 0x1ABC9C // teal
)

// Embed is the rendered notification document. It follows the Discord
// embed object so webhook deliveries can post it unchanged; the MQTT
// provider publishes the same document as part of the notification JSON.
type Embed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Fields      []EmbedField    `json:"fields,omitempty"`
	Footer      *EmbedFooter    `json:"footer,omitempty"`
	Timestamp   string          `json:"timestamp,omitempty"`
	Thumbnail   *EmbedThumbnail `json:"thumbnail,omitempty"`
}

// EmbedField is a single name/value pair inside an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter holds the embed footer text, used for image attribution.
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedThumbnail references the species image shown beside the embed.
type EmbedThumbnail struct {
	URL string `json:"url"`
}

// webhookMessage is the body POSTed to a Discord-compatible webhook.
type webhookMessage struct {
	Username string  `json:"username,omitempty"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}
