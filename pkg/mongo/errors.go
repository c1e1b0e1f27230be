package mongo

import (
	"errors"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	ErrFailedToConnectToMongo = errors.New("failed to connect to mongo")
	ErrHealthcheckFailed      = errors.New("mongo healthcheck failed")
	ErrEmptyConnectionURL     = errors.New("empty mongo connection url, use MONGODB_URL env var")
)

// unavailableCodes are server error codes returned while a node cannot
// serve the operation: no reachable primary, shutdown, step-down, replica
// state changes and network trouble between members.
var unavailableCodes = []int{
	6,     // HostUnreachable
	7,     // HostNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	262,   // ExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
}

// IsUnavailable reports whether err means the server could not be reached,
// did not answer in time, or refused the operation because it cannot serve
// it right now.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, mongo.ErrClientDisconnected) {
		return true
	}

	var serverErr mongo.ServerError
	if !errors.As(err, &serverErr) {
		return false
	}
	if serverErr.HasErrorLabel("RetryableWriteError") || serverErr.HasErrorLabel("TransientTransactionError") {
		return true
	}
	for _, code := range unavailableCodes {
		if serverErr.HasErrorCode(code) {
			return true
		}
	}
	return false
}
