package browser

import (
	"fmt"
	"math/rand/v2"
	"strings"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// Screen describes the display a profile claims to run on.
type Screen struct {
	Width      int
	Height     int
	ColorDepth int
	PixelDepth int
}

// Hardware describes the machine a profile claims to be.
type Hardware struct {
	Cores    int
	MemoryGB int
	Platform string
}

// Fingerprint is a coherent browser identity: user agent, headers, screen,
// hardware, and timezone that plausibly belong together. Each session picks
// one so clones do not all present the same machine.
type Fingerprint struct {
	Name              string
	UserAgent         string
	AcceptLanguage    string
	SecChUa           string
	SecChUaPlatform   string
	Screen            Screen
	Hardware          Hardware
	TimezoneOffsetMin int
	Languages         []string
}

var fingerprintProfiles = []Fingerprint{
	{
		Name:              "Win_Chrome_1080p",
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		AcceptLanguage:    "en-US,en;q=0.9",
		SecChUa:           `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		SecChUaPlatform:   `"Windows"`,
		Screen:            Screen{Width: 1920, Height: 1080, ColorDepth: 24, PixelDepth: 24},
		Hardware:          Hardware{Cores: 8, MemoryGB: 16, Platform: "Win32"},
		TimezoneOffsetMin: -300,
		Languages:         []string{"en-US", "en"},
	},
	{
		Name:              "Mac_Chrome_Large",
		UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		AcceptLanguage:    "en-US,en;q=0.9",
		SecChUa:           `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`,
		SecChUaPlatform:   `"macOS"`,
		Screen:            Screen{Width: 2560, Height: 1440, ColorDepth: 24, PixelDepth: 24},
		Hardware:          Hardware{Cores: 12, MemoryGB: 16, Platform: "MacIntel"},
		TimezoneOffsetMin: -420,
		Languages:         []string{"en-US", "en"},
	},
	{
		Name:              "Win_Firefox_Laptop",
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
		AcceptLanguage:    "en-GB,en;q=0.8",
		Screen:            Screen{Width: 1366, Height: 768, ColorDepth: 24, PixelDepth: 24},
		Hardware:          Hardware{Cores: 4, MemoryGB: 8, Platform: "Win32"},
		TimezoneOffsetMin: 0,
		Languages:         []string{"en-GB", "en"},
	},
	{
		Name:              "Win_Edge_Standard",
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
		AcceptLanguage:    "en-US,en;q=0.9,es;q=0.6",
		SecChUa:           `"Not_A Brand";v="8", "Chromium";v="120", "Microsoft Edge";v="120"`,
		SecChUaPlatform:   `"Windows"`,
		Screen:            Screen{Width: 1536, Height: 864, ColorDepth: 24, PixelDepth: 24},
		Hardware:          Hardware{Cores: 6, MemoryGB: 12, Platform: "Win32"},
		TimezoneOffsetMin: -360,
		Languages:         []string{"en-US", "en", "es"},
	},
}

// RandomFingerprint picks one of the built-in profiles.
func RandomFingerprint() Fingerprint {
	return fingerprintProfiles[rand.IntN(len(fingerprintProfiles))]
}

// disabledComponents are Chromium features turned off to reduce automation
// tells and background chatter.
var disabledComponents = []string{
	"AcceptCHFrame",
	"AutoExpandDetailsElement",
	"AvoidUnnecessaryBeforeUnloadCheckSync",
	"CertificateTransparencyComponentUpdater",
	"DestroyProfileOnBrowserClose",
	"DialMediaRouteProvider",
	"ExtensionManifestV2Disabled",
	"GlobalMediaControls",
	"HttpsUpgrades",
	"ImprovedCookieControls",
	"LazyFrameLoading",
	"LensOverlay",
	"MediaRouter",
	"PaintHolding",
	"ThirdPartyStoragePartitioning",
	"Translate",
	"AutomationControlled",
	"BackForwardCache",
	"OptimizationHints",
	"ProcessPerSiteUpToMainFrameThreshold",
	"InterestFeedContentSuggestions",
	"HeavyAdPrivacyMitigations",
	"PrivacySandboxSettings4",
	"AutofillServerCommunication",
	"CrashReporting",
	"OverscrollHistoryNavigation",
	"InfiniteSessionRestore",
	"ExtensionDisableUnsupportedDeveloper",
	"VizDisplayCompositor",
}

// stealthOptions returns the Chrome launch flags that keep the browser from
// advertising itself as automated.
func stealthOptions() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-service-autorun", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-ipc-flooding-protection", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-client-side-phishing-detection", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("metrics-recording-only", true),
		chromedp.Flag("no-report-upload", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-component-extensions-with-background-pages", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-search-engine-choice-screen", true),
		chromedp.Flag("disable-domain-reliability", true),
		chromedp.Flag("disable-datasaver-prompt", true),
		chromedp.Flag("disable-speech-synthesis-api", true),
		chromedp.Flag("disable-speech-api", true),
		chromedp.Flag("disable-print-preview", true),
		chromedp.Flag("disable-desktop-notifications", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("noerrdialogs", true),
		chromedp.Flag("password-store", "basic"),
		chromedp.Flag("use-mock-keychain", true),
		chromedp.Flag("unsafely-disable-devtools-self-xss-warnings", true),
		chromedp.Flag("enable-features", "NetworkService,NetworkServiceInProcess"),
		chromedp.Flag("log-level", "2"),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-web-security", true),
		chromedp.Flag("disable-features", strings.Join(disabledComponents, ",")),
	}
}

// defaultPermissions are granted per browser context so permission prompts
// never block an action.
var defaultPermissions = []cdpbrowser.PermissionType{
	cdpbrowser.PermissionTypeClipboardReadWrite,
	cdpbrowser.PermissionTypeClipboardSanitizedWrite,
	cdpbrowser.PermissionTypeNotifications,
}

// evasionScript builds the init script that aligns the JS-visible
// environment with the fingerprint before any page script runs.
func evasionScript(fp Fingerprint) string {
	langs := make([]string, len(fp.Languages))
	for i, l := range fp.Languages {
		langs[i] = fmt.Sprintf("%q", l)
	}
	return fmt.Sprintf(`(() => {
  Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
  Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => %d });
  Object.defineProperty(navigator, 'deviceMemory', { get: () => %d });
  Object.defineProperty(navigator, 'platform', { get: () => %q });
  Object.defineProperty(navigator, 'languages', { get: () => [%s] });
  Object.defineProperty(screen, 'width', { get: () => %d });
  Object.defineProperty(screen, 'height', { get: () => %d });
  Object.defineProperty(screen, 'colorDepth', { get: () => %d });
  Object.defineProperty(screen, 'pixelDepth', { get: () => %d });
  Date.prototype.getTimezoneOffset = function () { return %d; };
  window.chrome = window.chrome || { runtime: {} };
})();`,
		fp.Hardware.Cores,
		fp.Hardware.MemoryGB,
		fp.Hardware.Platform,
		strings.Join(langs, ", "),
		fp.Screen.Width,
		fp.Screen.Height,
		fp.Screen.ColorDepth,
		fp.Screen.PixelDepth,
		// getTimezoneOffset reports minutes behind UTC, so UTC-5 is +300.
		-fp.TimezoneOffsetMin,
	)
}
