/*
Package zapflow is a conversation-flow engine: it executes visual
conversation graphs against a messaging channel, one session per chat.

The engine is laid out hexagonally. pkg/domain holds the graph, session,
and lead model; pkg/ports defines the driven interfaces (stores and the
transport); pkg/adapters provides Redis and in-memory implementations.
The internal packages wire the runtime: the dispatcher guards and routes
inbound events, the processor executes nodes and auto-advances, and the
media pipeline handles transcoding and delivery fallbacks.
*/
package zapflow

// Version is the current release version.
const Version = "0.3.0"
