// Package models defines the domain entities of the download queue.
//
// Two entity families live here:
//
//  1. Download tasks: [DownloadTask], its [TaskStatus] state machine and [TaskPatch], the only way a task
//     record changes after creation.
//  2. Platform sessions: [PlatformSession] with [SessionStatus], the closed [CookieMethod] variant and the
//     set of supported [Platform] values.
//
// Entities are plain values. Ownership and synchronization belong to the store packages.
package models
