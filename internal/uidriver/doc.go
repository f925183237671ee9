/*
Package uidriver abstracts the chat interface under test.

The stress engine never touches a rendering technology directly. It depends
on two capabilities:

  - Browser: the shared automation context. It hands out isolated Surfaces
    and is released exactly once when the operator ends the session.
  - Surface: one conversation's interaction surface. It can configure a
    session, submit user text, count and read AI-originated messages in
    arrival order, and read optional UI-rendered time labels.

# WebSocket driver

NewWebSocketBrowser implements Browser for chat front-ends that speak a
JSON-frame protocol over WebSocket. Each Surface owns one connection.
Client frames:

	{"type":"setup","fields":{"center_id":"204"}}
	{"type":"user","text":"Book a room"}

Server frames carry a "type" of ready, message or error. Which fields of a
frame hold the role, text, time label and conversation id is configurable
through JMESPath Selectors, so the same driver adapts to different
front-end payload shapes.
*/
package uidriver
