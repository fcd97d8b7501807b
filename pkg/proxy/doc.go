/*
Package proxy implements a local HTTP gateway in front of a carpool client.

The gateway lets processes that cannot link the Go client, such as a browser front end, share one
session and one query cache. Reads under /api are answered from the cache, writes run the
corresponding mutation and invalidate the affected entries, and /events streams session and cache
changes over a WebSocket.

All responses are JSON. Successful responses wrap their payload as {"response": ...}; failures
are rendered as {"error": ..., "error_description": ...} with the HTTP status of the underlying
error.
*/
package proxy
