// Package analytics collects privacy-preserving page visits and serves the
// time-series, weekly heatmap and location views built from them.
package analytics

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// salt holds the per-installation random salt for IP hashing.
var salt struct {
	once  sync.Once
	value string
}

// InitSalt loads or generates the persistent hashing salt. Call it once at
// startup before any visit is collected.
func InitSalt(ctx context.Context, store *Store) error {
	var initErr error
	salt.once.Do(func() {
		s, err := store.GetSetting(ctx, "hash_salt")
		if err != nil {
			initErr = fmt.Errorf("read hash salt: %w", err)
			return
		}
		if s == "" {
			b := make([]byte, 32)
			if _, err := rand.Read(b); err != nil {
				initErr = fmt.Errorf("generate salt: %w", err)
				return
			}
			s = hex.EncodeToString(b)
			if err := store.SetSetting(ctx, "hash_salt", s); err != nil {
				initErr = fmt.Errorf("store hash salt: %w", err)
				return
			}
		}
		salt.value = s
	})
	return initErr
}

// Visit is a single human page view.
type Visit struct {
	ID          int64     `json:"-"`
	VisitorID   string    `json:"visitor_id"`
	SessionID   string    `json:"session_id"`
	IPHash      string    `json:"-"`
	Browser     string    `json:"browser"`
	OS          string    `json:"os"`
	Device      string    `json:"device"`
	Path        string    `json:"path"`
	Referrer    string    `json:"referrer"`
	ScreenSize  string    `json:"screen_size"`
	Country     string    `json:"country"` // ISO 3166-1 alpha-2, empty when unknown
	Timestamp   time.Time `json:"timestamp"`
	DurationSec int       `json:"duration_sec"`
}

// BotVisit is a crawler hit. Bot traffic never reaches the charts.
type BotVisit struct {
	ID        int64     `json:"-"`
	BotName   string    `json:"bot_name"`
	IPHash    string    `json:"-"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

func saltedHash(parts ...string) string {
	h := sha256.New()
	h.Write([]byte(salt.value))
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// HashIP returns a salted, truncated SHA-256 of ip.
func HashIP(ip string) string { return saltedHash(ip) }

// GenerateVisitorID derives an anonymous visitor ID from IP and User-Agent.
func GenerateVisitorID(ip, userAgent string) string { return saltedHash(ip, userAgent) }

// sessionID scopes a visitor to one UTC day.
func sessionID(visitorID string, at time.Time) string {
	h := sha256.Sum256([]byte(visitorID + "|" + at.UTC().Format(time.DateOnly)))
	return hex.EncodeToString(h[:])[:16]
}

type uaRule struct {
	needles []string
	name    string
}

// Rule order matters: Edge and Opera carry "chrome", Android carries "linux",
// iPads carry "mobile".
var (
	browserRules = []uaRule{
		{[]string{"firefox"}, "Firefox"},
		{[]string{"opera", "opr/"}, "Opera"},
		{[]string{"edg"}, "Edge"},
		{[]string{"chrome"}, "Chrome"},
		{[]string{"safari"}, "Safari"},
	}
	osRules = []uaRule{
		{[]string{"windows"}, "Windows"},
		{[]string{"android"}, "Android"},
		{[]string{"iphone", "ipad"}, "iOS"},
		{[]string{"macintosh", "mac os"}, "macOS"},
		{[]string{"linux"}, "Linux"},
	}
	deviceRules = []uaRule{
		{[]string{"tablet", "ipad"}, "Tablet"},
		{[]string{"mobile"}, "Mobile"},
	}
	botRules = []uaRule{
		{[]string{"googlebot"}, "Googlebot"},
		{[]string{"bingbot"}, "Bingbot"},
		{[]string{"yandex"}, "Yandex"},
		{[]string{"baidu"}, "Baidu"},
		{[]string{"duckduckbot"}, "DuckDuckBot"},
		{[]string{"facebookexternalhit"}, "Facebook"},
		{[]string{"twitterbot"}, "Twitterbot"},
		{[]string{"linkedinbot"}, "LinkedIn"},
		{[]string{"ahrefsbot"}, "Ahrefs"},
		{[]string{"semrushbot"}, "SEMrush"},
		{[]string{"mj12bot"}, "Majestic"},
		{[]string{"dotbot"}, "Moz"},
		{[]string{"slurp"}, "Yahoo Slurp"},
		{[]string{"crawler", "crawl"}, "Generic Crawler"},
		{[]string{"spider"}, "Generic Spider"},
		{[]string{"scrape"}, "Scraper"},
		{[]string{"bot"}, "Other Bot"},
	}
)

func match(ua string, rules []uaRule, fallback string) string {
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(ua, n) {
				return r.name
			}
		}
	}
	return fallback
}

// ParseUserAgent extracts browser, OS and device class from a User-Agent.
func ParseUserAgent(ua string) (browser, os, device string) {
	ua = strings.ToLower(ua)
	return match(ua, browserRules, "Other"), match(ua, osRules, "Other"), match(ua, deviceRules, "Desktop")
}

// IsBot reports whether ua looks like a crawler.
func IsBot(ua string) bool {
	return ExtractBotName(ua) != ""
}

// ExtractBotName names the crawler behind ua, or returns "" for humans.
func ExtractBotName(ua string) string {
	return match(strings.ToLower(ua), botRules, "")
}

var referrerDomain = regexp.MustCompile(`^https?://(?:www\.)?([^/:?#]+)`)

var searchEngines = []uaRule{
	{[]string{"google."}, "Google"},
	{[]string{"bing."}, "Bing"},
	{[]string{"duckduckgo."}, "DuckDuckGo"},
	{[]string{"yahoo."}, "Yahoo"},
	{[]string{"github."}, "GitHub"},
}

// CleanReferrer reduces a referrer URL to a source name or bare domain.
func CleanReferrer(ref string) string {
	if ref == "" {
		return "Direct"
	}
	if name := match(strings.ToLower(ref), searchEngines, ""); name != "" {
		return name
	}
	if m := referrerDomain.FindStringSubmatch(ref); len(m) > 1 {
		return m[1]
	}
	return "Other"
}

// NormalizeCountry upper-cases a two-letter country code and rejects anything
// else, including Cloudflare's "XX" placeholder.
func NormalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code == "XX" {
		return ""
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return code
}
