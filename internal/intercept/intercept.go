// Package intercept defines the request interception contract between a
// browser context and the handlers that decide each request's fate.
package intercept

import "context"

type ResourceType string

const (
	TypeDocument   ResourceType = "document"
	TypeStylesheet ResourceType = "stylesheet"
	TypeImage      ResourceType = "image"
	TypeMedia      ResourceType = "media"
	TypeFont       ResourceType = "font"
	TypeScript     ResourceType = "script"
	TypeXHR        ResourceType = "xhr"
	TypeFetch      ResourceType = "fetch"
	TypeWebSocket  ResourceType = "websocket"
	TypeOther      ResourceType = "other"
)

// Request is the part of an intercepted request handlers may inspect.
// FrameURL is the URL of the frame that issued it, if known.
type Request struct {
	URL          string
	ResourceType ResourceType
	FrameURL     string
}

// Route is a paused request. Exactly one of Abort or Continue should be
// called; the first call wins.
type Route interface {
	Request() Request
	Abort()
	Continue()
}

type Handler func(ctx context.Context, route Route)

// Router registers handlers for URL glob patterns.
type Router interface {
	Route(pattern string, handler Handler) error
}
