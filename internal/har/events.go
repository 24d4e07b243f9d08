package har

import (
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
)

// The DevTools event params below mirror the cdproto event types but keep
// protocol timestamps as plain seconds. Page timings and the receive phase
// are differences between those monotonic values, so there is no point in
// converting them to time.Time first.

type requestWillBeSentParams struct {
	RequestID        network.RequestID    `json:"requestId"`
	FrameID          cdp.FrameID          `json:"frameId"`
	DocumentURL      string               `json:"documentURL"`
	Timestamp        float64              `json:"timestamp"`
	WallTime         float64              `json:"wallTime"`
	Type             network.ResourceType `json:"type"`
	Request          requestParams        `json:"request"`
	RedirectResponse *responseParams      `json:"redirectResponse,omitempty"`
}

type requestParams struct {
	URL             string                   `json:"url"`
	URLFragment     string                   `json:"urlFragment,omitempty"`
	Method          string                   `json:"method"`
	Headers         network.Headers          `json:"headers"`
	PostData        string                   `json:"postData,omitempty"`
	HasPostData     bool                     `json:"hasPostData,omitempty"`
	InitialPriority network.ResourcePriority `json:"initialPriority"`
}

type responseParams struct {
	URL                string                  `json:"url"`
	Status             int                     `json:"status"`
	StatusText         string                  `json:"statusText"`
	Headers            network.Headers         `json:"headers"`
	HeadersText        string                  `json:"headersText,omitempty"`
	MimeType           string                  `json:"mimeType"`
	RequestHeaders     network.Headers         `json:"requestHeaders,omitempty"`
	RequestHeadersText string                  `json:"requestHeadersText,omitempty"`
	ConnectionReused   bool                    `json:"connectionReused"`
	ConnectionID       float64                 `json:"connectionId"`
	RemoteIPAddress    string                  `json:"remoteIPAddress,omitempty"`
	FromDiskCache      bool                    `json:"fromDiskCache,omitempty"`
	FromPrefetchCache  bool                    `json:"fromPrefetchCache,omitempty"`
	EncodedDataLength  float64                 `json:"encodedDataLength"`
	Timing             *network.ResourceTiming `json:"timing,omitempty"`
	Protocol           string                  `json:"protocol,omitempty"`
}

type responseReceivedParams struct {
	RequestID network.RequestID    `json:"requestId"`
	FrameID   cdp.FrameID          `json:"frameId"`
	Timestamp float64              `json:"timestamp"`
	Type      network.ResourceType `json:"type"`
	Response  responseParams       `json:"response"`
}

type dataReceivedParams struct {
	RequestID         network.RequestID `json:"requestId"`
	Timestamp         float64           `json:"timestamp"`
	DataLength        int64             `json:"dataLength"`
	EncodedDataLength int64             `json:"encodedDataLength"`
}

type loadingFinishedParams struct {
	RequestID         network.RequestID `json:"requestId"`
	Timestamp         float64           `json:"timestamp"`
	EncodedDataLength float64           `json:"encodedDataLength"`
}

type loadingFailedParams struct {
	RequestID     network.RequestID    `json:"requestId"`
	Timestamp     float64              `json:"timestamp"`
	Type          network.ResourceType `json:"type"`
	ErrorText     string               `json:"errorText"`
	Canceled      bool                 `json:"canceled,omitempty"`
	BlockedReason string               `json:"blockedReason,omitempty"`
}

type requestServedFromCacheParams struct {
	RequestID network.RequestID `json:"requestId"`
}

type frameStartedLoadingParams struct {
	FrameID cdp.FrameID `json:"frameId"`
}

type frameAttachedParams struct {
	FrameID       cdp.FrameID `json:"frameId"`
	ParentFrameID cdp.FrameID `json:"parentFrameId"`
}

type pageLifecycleParams struct {
	Timestamp float64 `json:"timestamp"`
}
