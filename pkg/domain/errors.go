package domain

import "errors"

// ErrNoActiveGraph is returned when no published graph exists in the
// store.
var ErrNoActiveGraph = errors.New("no active graph")

// ErrLeadNotFound is returned when a chat identity has no lead record.
var ErrLeadNotFound = errors.New("lead not found")

// ErrNoStartNode is returned when the active graph has no start node.
var ErrNoStartNode = errors.New("graph has no start node")
