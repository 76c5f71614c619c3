package streamsvc

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/sam0402/slimstreamer/internal/capture"
	"github.com/sam0402/slimstreamer/internal/chunk"
	"github.com/sam0402/slimstreamer/internal/encoder"
	"github.com/sam0402/slimstreamer/internal/pipeline"
	"github.com/sam0402/slimstreamer/internal/scheduler"
	"github.com/sam0402/slimstreamer/internal/streamerr"
)

// ErrUnknownClient is returned by AttachHTTP when a data connection arrives
// for a clientID with no matching control session registered yet.
var ErrUnknownClient = errors.New("streamsvc: unknown client id")

// Streamer is the rate arbiter (§4.7): it owns every Pipeline, keyed by
// sampling rate, and every connected Client, keyed by clientID. A chunk
// arriving from a Pipeline fans out to every client whose negotiated rate
// matches and skips the others. When a rate's Pipeline is removed, every
// client selected at that rate is drained and renegotiated via
// STRM{Stop}/STRM{Start}. Chunk fan-out runs on the Scheduler goroutine
// (§5); mu guards the client and pipeline tables, which the accept
// goroutines and the stats reporter also read.
type Streamer struct {
	sched  *scheduler.Scheduler
	logger *slog.Logger

	writerQueueDepth int
	maxBytesPerSec   int64
	encoderBuilder   encoder.Builder

	pipelines map[uint32]*pipeline.Pipeline
	clients   map[string]*Client

	debugTap func(chunk.Chunk)

	mu sync.Mutex // guards clients/pipelines against concurrent Register/lookup from accept goroutines
}

// SetDebugTap registers fn to observe every chunk delivered from any
// Pipeline, alongside the normal client fan-out. Used to wire an optional
// debug-archive sink (raw PCM capture for offline inspection) without
// involving it in the fan-out's backpressure or error handling.
func (st *Streamer) SetDebugTap(fn func(chunk.Chunk)) {
	st.mu.Lock()
	st.debugTap = fn
	st.mu.Unlock()
}

// New builds an empty Streamer. Pipelines are added with AddPipeline before
// Start. maxBytesPerSec caps each HTTP session's outbound rate; 0 disables
// the cap.
func New(sched *scheduler.Scheduler, encoderBuilder encoder.Builder, writerQueueDepth int, maxBytesPerSec int64, logger *slog.Logger) *Streamer {
	return &Streamer{
		sched:            sched,
		logger:           logger,
		writerQueueDepth: writerQueueDepth,
		maxBytesPerSec:   maxBytesPerSec,
		encoderBuilder:   encoderBuilder,
		pipelines:        make(map[uint32]*pipeline.Pipeline),
		clients:          make(map[string]*Client),
	}
}

// AddPipeline registers p, keyed by its capture rate. Start wires its chunk
// delivery to this Streamer's fan-out.
func (st *Streamer) AddPipeline(p *pipeline.Pipeline) {
	st.mu.Lock()
	st.pipelines[p.Rate()] = p
	st.mu.Unlock()
}

// PipelineFormat returns the capture format for rate, used by
// HTTPStreamingSession construction to size its Encoder.
func (st *Streamer) PipelineFormat(rate uint32) (capture.Format, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.pipelines[rate]
	if !ok {
		return capture.Format{}, false
	}
	return p.Format(), true
}

// Start launches every registered Pipeline.
func (st *Streamer) Start() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, p := range st.pipelines {
		p.SetDeliver(st.deliver)
		p.Start()
	}
}

// RegisterClient adds c to the client table, keyed by c.ID. Must be called
// from a Scheduler task.
func (st *Streamer) RegisterClient(c *Client) {
	st.mu.Lock()
	st.clients[c.ID] = c
	st.mu.Unlock()
}

// RemoveClient drops c from the client table and closes its sessions. Must
// be called from a Scheduler task.
func (st *Streamer) RemoveClient(id string) {
	st.mu.Lock()
	c, ok := st.clients[id]
	delete(st.clients, id)
	st.mu.Unlock()
	if ok {
		c.Close()
	}
}

// Client looks up a client by ID.
func (st *Streamer) Client(id string) (*Client, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	c, ok := st.clients[id]
	return c, ok
}

// deliver fans a captured chunk out to every client whose data session's
// rate matches; clients at another rate are skipped and left registered.
// Runs on the Scheduler goroutine.
func (st *Streamer) deliver(c chunk.Chunk) {
	defer c.Release()

	st.mu.Lock()
	clients := make([]*Client, 0, len(st.clients))
	for _, cl := range st.clients {
		clients = append(clients, cl)
	}
	tap := st.debugTap
	st.mu.Unlock()

	if tap != nil {
		tap(c)
	}

	for _, cl := range clients {
		data := cl.Data()
		if data == nil {
			continue
		}
		if data.Rate() != c.SamplingRate {
			continue
		}
		if c.EndOfStream {
			data.Drain(func() { st.RemoveClient(cl.ID) })
			continue
		}
		data.Encode(c)
	}
}

// AttachHTTP performs the data-channel handshake on a freshly accepted
// connection (§6: "GET /stream?player=<clientID>"): it reads the request
// line, validates the method, parses the clientID, looks up the matching
// Client (registered by its control session), and attaches a new
// HTTPStreamingSession negotiated at that client's currently selected rate.
// A malformed request or unknown clientID closes conn and returns an error
// without ever reaching the CORE's session state (§7's ProtocolError path).
func (st *Streamer) AttachHTTP(conn net.Conn) error {
	br := bufio.NewReader(conn)
	requestLine, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return streamerr.Protocol("streamsvc", err)
	}
	if !validateRequest(requestLine) {
		conn.Close()
		return streamerr.Protocol("streamsvc", errors.New("non-GET request"))
	}
	clientID, ok := parseClientID(requestLine)
	if !ok {
		conn.Close()
		return streamerr.Protocol("streamsvc", errors.New("missing client id"))
	}

	st.mu.Lock()
	cl, known := st.clients[clientID]
	st.mu.Unlock()
	if !known {
		conn.Close()
		return ErrUnknownClient
	}

	rate := cl.SelectedRate()
	format, ok := st.PipelineFormat(rate)
	if !ok {
		conn.Close()
		return streamerr.RateMismatch("streamsvc", errors.New("no pipeline for selected rate"))
	}

	session := NewHTTPStreamingSession(clientID, conn, rate, format, st.encoderBuilder, st.writerQueueDepth, st.maxBytesPerSec, st.sched, st.logger)
	session.SetOnFailed(func(error) { st.sched.Post(func() { st.RemoveClient(clientID) }) })
	if err := session.Start(); err != nil {
		conn.Close()
		return err
	}
	st.sched.Post(func() { cl.SetData(session) })
	return nil
}

// Renegotiate switches c onto newRate, draining its current HTTP session
// (if any) and sending STRM{Stop} followed by STRM{Start} over its control
// session, matching §4.7's RateMismatch recovery: STRM{Start} tells the
// player to reconnect its data channel, which arrives at AttachHTTP already
// reading c's updated SelectedRate. Must be called from a Scheduler task.
func (st *Streamer) Renegotiate(c *Client, newRate uint32) {
	c.SetSelectedRate(newRate)
	if c.Control != nil {
		c.Control.SendStreamStop()
	}

	restart := func() {
		c.SetData(nil)
		if c.Control != nil {
			c.Control.SendStreamStart()
		}
	}
	if d := c.Data(); d != nil {
		d.Drain(func() { st.sched.Post(restart) })
		return
	}
	restart()
}

// RemovePipeline stops and unregisters the Pipeline capturing at rate, then
// renegotiates every client currently selected at that rate onto
// fallbackRate (§4.7, scenario S2: capture narrows to a single remaining
// rate and every client pinned to the one that disappeared must switch).
// Must be called from a Scheduler task.
func (st *Streamer) RemovePipeline(rate uint32, fallbackRate uint32) {
	st.mu.Lock()
	p, ok := st.pipelines[rate]
	if ok {
		delete(st.pipelines, rate)
	}
	affected := make([]*Client, 0)
	for _, cl := range st.clients {
		if cl.SelectedRate() == rate {
			affected = append(affected, cl)
		}
	}
	st.mu.Unlock()

	if ok {
		p.Stop()
	}
	for _, cl := range affected {
		st.Renegotiate(cl, fallbackRate)
	}
}

// Stop drains and closes every client, then stops every Pipeline. Matches
// §7's shutdown sequence.
func (st *Streamer) Stop() {
	st.mu.Lock()
	clients := make([]*Client, 0, len(st.clients))
	for _, c := range st.clients {
		clients = append(clients, c)
	}
	pipelines := make([]*pipeline.Pipeline, 0, len(st.pipelines))
	for _, p := range st.pipelines {
		pipelines = append(pipelines, p)
	}
	st.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		cl := c
		done := make(chan struct{})
		if d := cl.Data(); d != nil {
			d.Drain(func() { close(done) })
		} else {
			close(done)
		}
		go func() {
			defer wg.Done()
			<-done
			cl.Close()
		}()
	}
	wg.Wait()

	for _, p := range pipelines {
		p.Stop()
	}
}
