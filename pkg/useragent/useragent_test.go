package useragent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/sessionguard/pkg/useragent"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ua     string
		device string
		brow   string
		ver    string
		os     string
	}{
		{
			name:   "chrome on mac",
			ua:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.6099.109 Safari/537.36",
			device: useragent.DeviceDesktop, brow: "Chrome", ver: "120.0.6099.109", os: "macOS",
		},
		{
			name:   "safari on iphone",
			ua:     "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			device: useragent.DeviceMobile, brow: "Safari", ver: "17.1", os: "iOS",
		},
		{
			name:   "edge on windows",
			ua:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.61",
			device: useragent.DeviceDesktop, brow: "Edge", ver: "120.0.2210.61", os: "Windows",
		},
		{
			name:   "firefox on linux",
			ua:     "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			device: useragent.DeviceDesktop, brow: "Firefox", ver: "121.0", os: "Linux",
		},
		{
			name:   "android tablet",
			ua:     "Mozilla/5.0 (Linux; Android 13; SM-X700) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
			device: useragent.DeviceTablet, brow: "Chrome", ver: "119.0.0.0", os: "Android",
		},
		{
			name:   "android phone",
			ua:     "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			device: useragent.DeviceMobile, brow: "Chrome", ver: "120.0.0.0", os: "Android",
		},
		{
			name:   "crawler",
			ua:     "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			device: useragent.DeviceBot, brow: useragent.Unknown, os: useragent.Unknown,
		},
		{
			name:   "empty",
			ua:     "",
			device: useragent.DeviceUnknown, brow: useragent.Unknown, os: useragent.Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info := useragent.Parse(tt.ua)
			assert.Equal(t, tt.device, info.DeviceType)
			assert.Equal(t, tt.brow, info.Browser)
			assert.Equal(t, tt.ver, info.BrowserVersion)
			assert.Equal(t, tt.os, info.OS)
		})
	}
}

func TestInfoString(t *testing.T) {
	t.Parallel()

	info := useragent.Parse("Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")
	assert.Equal(t, "Firefox 121 on Linux (Desktop)", info.String())
}
