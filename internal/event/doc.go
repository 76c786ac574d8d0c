/*
Package event provides a type-safe pub/sub event system for the pairpad
server.

Publishers emit collaboration events (room lifecycle, presence, file and
chat activity) and subscribers react to them without direct dependencies
on the collaboration core. The package rides on watermill's gochannel for
infrastructure while keeping direct-call semantics, so subscribers see
typed Data values rather than marshaled payloads.

Publishing:

	bus.Publish(event.Event{
		Type: event.UserJoined,
		Data: event.UserJoinedData{RoomID: "proj-1", UserID: "alice"},
	})

Subscribing:

	unsub := bus.Subscribe(event.RoomDestroyed, func(e event.Event) {
		data := e.Data.(event.RoomDestroyedData)
		logging.Info().Str("roomID", data.RoomID).Msg("room destroyed")
	})
	defer unsub()

Publish runs each subscriber in its own goroutine; PublishSync runs them
in the calling goroutine. Subscribers used with PublishSync must complete
quickly and use non-blocking channel sends, since they run inline with
the collaboration handlers.
*/
package event
