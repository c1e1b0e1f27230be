// Package useragent classifies HTTP User-Agent strings into the coarse device
// metadata stored alongside a session: device type, browser and operating
// system.
//
//	info := useragent.Parse(r.UserAgent())
//	info.DeviceType // "desktop"
//	info.Browser    // "Chrome"
//	info.OS         // "macOS"
//	info.String()   // "Chrome 120 on macOS (Desktop)"
//
// Classification is keyword based and intentionally shallow: it is meant for
// showing users where they are signed in, not for security decisions.
package useragent
