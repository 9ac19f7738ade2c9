// Package live defines the realtime session transport the duet coordinator
// drives, and a Gemini Live implementation of it.
//
// A Transport is one bidirectional model connection with its own Config
// (modalities, system instruction, tool declarations). The coordinator owns
// two of them: a speaking session that narrates with audio and a function
// session that emits tool calls.
//
//	browser audio/frames ──► SendRealtimeInput ──► speaking + function sessions
//	function session ──► ToolCalls() ──► dispatcher ──► SendToolResponse
//	dispatcher events ──► notifier ──► SendText ──► speaking session
package live
