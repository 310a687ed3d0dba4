/*
Package domain contains the core domain models for the Zapflow engine.

It defines the entities of the conversation state machine: the authored
Graph (Nodes and Edges), the volatile Session that tracks a chat's
position inside the graph, and the durable Lead record that outlives
any single session. This package is kept pure and free of I/O or
persistence concerns, following Hexagonal Architecture principles.

# Key Entities

  - Node: one authored step in the conversation (message, menu, wait,
    media delivery). Payloads arrive as loosely typed JSON and are
    decoded defensively.
  - Edge: a directed transition between two nodes, optionally tagged
    with a menu option id via SourceHandle.
  - Session: the runtime pointer to a chat's current node.
  - Lead: the durable record of a chat's conversational status.
  - InboundEvent: a single message or poll vote delivered by the
    transport.
*/
package domain
