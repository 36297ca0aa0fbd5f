package client

import (
	"net/http"
	"time"
)

// HeaderSettingClient wraps http.Client to automatically set the headers
// every playlist and guide download needs. Some providers reject requests
// without a browser-like User-Agent, so the agent string is configurable.
type HeaderSettingClient struct {
	Client    *http.Client
	userAgent string
}

// NewHeaderSettingClient builds the shared download client. Downloads are
// bounded documents, not open-ended streams, so a firm overall timeout is
// safe here.
func NewHeaderSettingClient(userAgent string) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 2 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &HeaderSettingClient{
		Client:    client,
		userAgent: userAgent,
	}
}

func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", hsc.userAgent)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Accept", "*/*")
}
