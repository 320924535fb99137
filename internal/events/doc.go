// Package events broadcasts task state changes to interested listeners.
//
// The lifecycle layer publishes one Event per committed transition. When
// events are disabled in config a no-op Publisher is used; otherwise events
// are JSON encoded and sent to a Redis pub/sub channel, which `bgtask tasks
// watch` subscribes to.
package events
