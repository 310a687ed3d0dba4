/*
Package ports defines the driven-side interfaces of the Zapflow engine.

The engine core depends only on these contracts; concrete adapters
(redis, in-memory, the websocket gateway bridge) live under
pkg/adapters and internal/adapters. This keeps the conversation state
machine testable without a broker, a database, or a live messaging
channel.
*/
package ports
