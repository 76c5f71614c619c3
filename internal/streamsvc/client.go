// Package streamsvc implements the parts of the CORE that sit above a
// single Pipeline: per-client session pairing (§3's Client), the HTTP data
// channel (§4.4's HTTPStreamingSession), and the Streamer rate arbiter
// (§4.7) that fans captured chunks out to every client whose negotiated
// rate currently matches.
package streamsvc

import (
	"sync/atomic"

	"github.com/sam0402/slimstreamer/internal/slimproto"
)

// Client pairs one player's SlimProto control session with its HTTP data
// session and tracks the sampling rate it has negotiated. A Client exists
// from the moment its control connection completes the connect sequence
// until either side disconnects; it carries no state across restarts (§1).
type Client struct {
	ID string

	Control *slimproto.Session
	data    atomic.Pointer[HTTPStreamingSession]

	selectedRate atomic.Uint32
}

// NewClient creates a Client for a freshly connected control session.
func NewClient(id string, control *slimproto.Session) *Client {
	return &Client{ID: id, Control: control}
}

// SelectedRate is the sampling rate this client is currently receiving, or 0
// before its HTTP session has negotiated one.
func (c *Client) SelectedRate() uint32 { return c.selectedRate.Load() }

// SetSelectedRate records the rate negotiated by (or renegotiated for) this
// client's HTTP session.
func (c *Client) SetSelectedRate(rate uint32) { c.selectedRate.Store(rate) }

// Data returns the client's current HTTP streaming session, or nil before
// one has attached.
func (c *Client) Data() *HTTPStreamingSession { return c.data.Load() }

// SetData attaches (or clears, with nil) the client's HTTP streaming
// session.
func (c *Client) SetData(s *HTTPStreamingSession) { c.data.Store(s) }

// Close tears down both halves of the client's session state.
func (c *Client) Close() {
	if c.Control != nil {
		c.Control.Stop()
	}
	if d := c.Data(); d != nil {
		d.Close()
	}
}
