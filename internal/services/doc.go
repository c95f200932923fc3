// Package services defines the [Service] interface, the command surface of the download queue, and its two
// implementations.
//
// # Local
//
// [Local] calls the scheduler and the session store directly. It is what `mediaq serve` exposes over HTTP and
// what tests use. Commands return as soon as the scheduler has decided; they never wait for a download.
//
// # Client
//
// [Client] speaks the JSON API served by internal/web. Error responses carry a status code that maps back to the
// same sentinel errors [Local] returns, so callers can use [errors.Is] with either:
//   - 400: [shared.ErrInvalidRequest]
//   - 401: [shared.ErrAuthRequired]
//   - 404: [shared.ErrNotFound]
//   - 409: [shared.ErrInvalidTransition]
//   - 422: [shared.ErrParse]
//   - 423: [shared.ErrBrowserLocked]
//   - 503: [shared.ErrServiceUnavailable]
//
// # Events
//
// Subscribe returns a channel of [events.Event]. Over HTTP the stream is server-sent events, one
// `event: <topic>` and `data: <json>` pair per event. A resync event means some events were dropped and the
// caller should re-read [Service.GetQueueStatus].
package services
