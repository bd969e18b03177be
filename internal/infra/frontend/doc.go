// Package frontend talks to the chat frontend bridge over HTTP.
//
// The bridge is the process that owns the chat platform connection. KeyDesk
// calls it to deliver issued keys by direct message and to inspect, notify
// and delete ticket channels. Client implements both service.Courier and
// service.ChannelGateway.
//
// Bridge API (JSON over GET/POST):
//
//	POST /v1/deliver                      {recipient_id, display_name, key}
//	GET  /v1/channels/{id}/activity?since=<unix ms>  -> {participant_messages}
//	POST /v1/channels/{id}/notice         {text}
//	POST /v1/channels/{id}/delete
package frontend
