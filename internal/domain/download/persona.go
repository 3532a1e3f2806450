package download

import "time"

// Persona is a simulated client profile the extraction engine presents to the
// source site. Personas are tried in catalog order; the ordering reflects
// empirical reliability, web first.
type Persona struct {
	Name         string
	PlayerClient string
	UserAgent    string
	// BotBackoff is the base wait applied after a bot-detection-shaped
	// failure before the next persona attempt. It scales with the persona's
	// position in the fallback order.
	BotBackoff time.Duration
}

// DefaultPersonas returns the built-in fallback order.
func DefaultPersonas() []Persona {
	return []Persona{
		{
			Name:         "web",
			PlayerClient: "web",
			UserAgent:    "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			BotBackoff:   5 * time.Second,
		},
		{
			Name:         "android",
			PlayerClient: "android",
			UserAgent:    "com.google.android.youtube/19.09.37 (Linux; U; Android 11) gzip",
			BotBackoff:   8 * time.Second,
		},
		{
			Name:         "ios",
			PlayerClient: "ios",
			UserAgent:    "com.google.ios.youtube/19.09.3 (iPhone14,3; U; CPU iOS 15_6 like Mac OS X)",
			BotBackoff:   8 * time.Second,
		},
		{
			Name:         "tv",
			PlayerClient: "tv_embedded",
			UserAgent:    "Mozilla/5.0 (PlayStation; PlayStation 4/12.00) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.4 Safari/605.1.15",
			BotBackoff:   12 * time.Second,
		},
	}
}
