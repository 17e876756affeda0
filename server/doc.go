// Package server exposes ingestion and chat over HTTP.
//
// Routes:
//
//	POST /documents/process          multipart "file" upload, returns {"assetId"}
//	POST /chat/start                 {"assetId"}, returns {"sessionId"}
//	POST /chat/message               {"sessionId","query"}, streams server-sent events
//	GET  /chat/history/{sessionId}   returns {"history":[...]}
//	GET  /healthz
//
// A chat message streams frames of the form data: {"chunk":"..."} and ends
// with data: {"done":true} or data: {"error":"..."}. Errors found before the
// stream opens (unknown session, blank query) are plain JSON responses.
package server
