// Package chat defines the domain types shared by the live conversation channel:
// messages, conversations, connection states and the error taxonomy.
//
// Layout:
//   - pkg/chat/timeline merges history and live deliveries into one ordered view.
//   - pkg/chat/history loads the message backlog (REST, local cache).
//   - pkg/chat/channel owns the live websocket and its reconnect state machine.
//   - pkg/chat/session composes the three per open conversation.
package chat
