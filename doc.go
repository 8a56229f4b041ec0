// The pubsub event broker
//
// Features
//
// - Topic based publish/subscribe with per-topic subscriber lists
//
// - Content filtering: route events on keywords independent of topic
//
// - At-least-once delivery: offline subscribers catch up on return
//
// - Background retry worker, woken immediately on new pending events
//
// - Subscribers keep their identity across disconnects
//
// - REST API with websocket push for live subscribers
//
// - Client agent with bounded retry against an unreachable broker
//
// - Agent snapshots: save local state, resume under the same id
//
// - Bootstrap topic loading from a file
//
// - Stock market trading demo built as an ordinary client
package pubsub
