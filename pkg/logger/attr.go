package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Error records err under "error". Nil produces an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under "user_id".
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// SessionID records a short digest of a session identifier under
// "session". The identifier itself is a bearer credential and is never
// logged.
func SessionID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	sum := sha256.Sum256([]byte(id))
	return slog.String("session", hex.EncodeToString(sum[:6]))
}

// PublicID records a session's public identifier under "public_id".
func PublicID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("public_id", id)
}

// Reason records a termination or suspicion reason under "reason".
func Reason(reason string) slog.Attr {
	if reason == "" {
		return slog.Attr{}
	}
	return slog.String("reason", reason)
}

// RequestID records the request identifier under "request_id".
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
