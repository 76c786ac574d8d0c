/*
Package collab implements the realtime collaboration core of the pairpad
server: shared editing rooms that multiple clients observe and mutate over
persistent connections.

# Components

  - Registry: per-connection identity and session metadata, with a
    reverse index from connection to joined rooms.
  - Directory: room membership sets and per-room file-state snapshots.
    Rooms are created implicitly on the first join and destroyed the
    instant their member set becomes empty.
  - Router: validates inbound protocol events, mutates the directory,
    and fans outbound events out to room members. It also drives the
    connection lifecycle (connect, join, leave, disconnect) and exposes
    the administrative surface used by other server components.

# Concurrency

Every event touching a room is processed to completion under that room's
lock before the next event for the same room runs, so membership
transitions, file-state writes, and fan-out enqueueing are atomic per
room. Events on different rooms proceed in parallel. Outbound delivery
goes through per-connection Senders that must not block, so a slow or
dead recipient never stalls the handler or the other recipients.

# Protocol

The conflict policy for file state is last-writer-wins: a file-change
unconditionally overwrites the stored entry for its path with no version
check. Fan-out is best-effort and at-most-once; there are no retries and
no delivery acknowledgements. A connection may be a member of any number
of rooms at once.
*/
package collab
