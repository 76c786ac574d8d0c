// Package server provides the HTTP surface of the pairpad collaboration
// server.
//
// The server exposes four kinds of endpoints:
//
//   - /ws: the websocket transport clients use to join rooms, edit files,
//     move cursors and chat. Each connection is handed to the
//     collaboration router (internal/collab) for its whole lifetime; the
//     server's only jobs here are the upgrade, the read/write pumps and
//     disconnect detection.
//   - /collab/*: the administrative surface other components call —
//     broadcast an event into a named room, list a room's participants,
//     count active rooms, and ask the AI assist boundary to post into a
//     room.
//   - /event: a server-sent-events feed of the collaboration event bus
//     for observers, optionally filtered to a single room.
//   - /health and /metrics: liveness and Prometheus metrics.
//
// The websocket write path is strictly non-blocking: outbound frames are
// enqueued into a per-connection buffer drained by a dedicated goroutine,
// so a slow or dead client can only lose its own frames and never stalls
// a room.
package server
