package useragent

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Device types.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Unknown is reported for browser and OS names that could not be detected.
const Unknown = "Unknown"

// Info is the parsed form of a User-Agent header.
type Info struct {
	DeviceType     string `json:"device_type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os"`
}

// String returns a short human readable description, e.g. "Firefox 121 on Linux (Desktop)".
func (i Info) String() string {
	var b strings.Builder
	b.WriteString(i.Browser)
	if major, _, _ := strings.Cut(i.BrowserVersion, "."); major != "" {
		b.WriteString(" ")
		b.WriteString(major)
	}
	b.WriteString(" on ")
	b.WriteString(i.OS)
	b.WriteString(" (")
	// Casers carry state and must not be shared between goroutines.
	b.WriteString(cases.Title(language.English).String(i.DeviceType))
	b.WriteString(")")
	return b.String()
}

type browserRule struct {
	name     string
	needle   string
	excludes []string
	version  *regexp.Regexp
}

// Order matters: Chromium derivatives announce "chrome" too and Chrome
// announces "safari".
var browserRules = []browserRule{
	{name: "Edge", needle: "edg", version: regexp.MustCompile(`edg(?:e|a|ios)?/([\d.]+)`)},
	{name: "Opera", needle: "opr/", version: regexp.MustCompile(`opr/([\d.]+)`)},
	{name: "Samsung Internet", needle: "samsungbrowser", version: regexp.MustCompile(`samsungbrowser/([\d.]+)`)},
	{name: "Yandex", needle: "yabrowser", version: regexp.MustCompile(`yabrowser/([\d.]+)`)},
	{name: "Vivaldi", needle: "vivaldi", version: regexp.MustCompile(`vivaldi/([\d.]+)`)},
	{name: "Firefox", needle: "firefox", version: regexp.MustCompile(`firefox/([\d.]+)`)},
	{name: "Firefox", needle: "fxios", version: regexp.MustCompile(`fxios/([\d.]+)`)},
	{name: "Chrome", needle: "crios", version: regexp.MustCompile(`crios/([\d.]+)`)},
	{name: "Chrome", needle: "chrome", version: regexp.MustCompile(`chrome/([\d.]+)`)},
	{name: "Safari", needle: "safari", excludes: []string{"chrome", "chromium", "android"}, version: regexp.MustCompile(`version/([\d.]+)`)},
	{name: "Internet Explorer", needle: "msie", version: regexp.MustCompile(`msie ([\d.]+)`)},
	{name: "Internet Explorer", needle: "trident/", version: regexp.MustCompile(`rv:([\d.]+)`)},
}

type osRule struct {
	name    string
	needles []string
}

var osRules = []osRule{
	{name: "Windows Phone", needles: []string{"windows phone"}},
	{name: "Windows", needles: []string{"windows"}},
	{name: "iOS", needles: []string{"iphone", "ipad", "ipod"}},
	{name: "macOS", needles: []string{"macintosh", "mac os x"}},
	{name: "Android", needles: []string{"android"}},
	{name: "ChromeOS", needles: []string{"cros", "chromeos"}},
	{name: "Linux", needles: []string{"linux", "x11", "ubuntu", "fedora"}},
}

var botNeedles = []string{"bot", "spider", "crawler", "slurp", "curl/", "wget/", "python-requests", "go-http-client", "headless"}

// Parse classifies a User-Agent string. It never fails: unrecognized input
// yields DeviceUnknown and Unknown names.
func Parse(ua string) Info {
	lower := strings.ToLower(strings.TrimSpace(ua))
	if lower == "" {
		return Info{DeviceType: DeviceUnknown, Browser: Unknown, OS: Unknown}
	}

	info := Info{
		DeviceType: deviceType(lower),
		Browser:    Unknown,
		OS:         Unknown,
	}

	for _, rule := range browserRules {
		if !strings.Contains(lower, rule.needle) || containsAny(lower, rule.excludes) {
			continue
		}
		info.Browser = rule.name
		if m := rule.version.FindStringSubmatch(lower); len(m) == 2 {
			info.BrowserVersion = m[1]
		}
		break
	}

	for _, rule := range osRules {
		if containsAny(lower, rule.needles) {
			info.OS = rule.name
			break
		}
	}

	return info
}

func deviceType(lower string) string {
	switch {
	case containsAny(lower, botNeedles):
		return DeviceBot
	case strings.Contains(lower, "ipad"), strings.Contains(lower, "tablet"), strings.Contains(lower, "kindle"):
		return DeviceTablet
	case strings.Contains(lower, "android"):
		// Android tablets omit the "mobile" token that phones send.
		if strings.Contains(lower, "mobile") {
			return DeviceMobile
		}
		return DeviceTablet
	case containsAny(lower, []string{"iphone", "ipod", "mobile", "windows phone"}):
		return DeviceMobile
	case containsAny(lower, []string{"windows", "macintosh", "x11", "linux", "cros"}):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
