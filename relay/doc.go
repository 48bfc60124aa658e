// Package relay is the core of the companion backend: it owns the Twitch and
// YouTube chat adapters and the response generator, and turns everything that
// happens into broadcast events for connected dashboard clients.
//
// Per platform it tracks a small connection state machine
// (disconnected -> connecting -> connected) driven by connect/disconnect
// commands. Every inbound chat message is broadcast immediately; a concurrent
// pipeline then asks the generator for an optional reply, writes it back to the
// source platform, and broadcasts the ai_response. Write-back failures are
// best-effort: logged, counted, and surfaced as reply_delivery_failed events
// so clients can tell a delivered reply from a dropped one.
//
// Two sampling gates bound reply volume: the generator applies its own rate on
// every call, and messages from env-auto-connected platforms pass an extra
// gate first. The rates are separate knobs (RESPONSE_RATE, AUTO_REPLY_RATE).
package relay
