// Package mailer defines the outbound email boundary: a prepared message
// type and the Sender interface transmission providers implement.
//
// The package deliberately knows nothing about how message bodies are
// produced; callers hand it finished HTML and text. Provider adapters live
// in subpackages (resend). Throttled wraps any Sender with a client-side
// rate limit, and LogSender is a development fallback that records messages
// to the log instead of transmitting them.
package mailer
