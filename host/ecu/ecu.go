// Package ecu is the host-side client of an engine controller: it downloads
// the controller's dictionary, resolves command names to ids and wraps the
// status, test pulse and emergency stop commands.
package ecu

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"sparkcore/core"
	"sparkcore/host/serial"
	"sparkcore/protocol"
)

var (
	ErrNoDictionary   = errors.New("dictionary not loaded")
	ErrUnknownCommand = errors.New("unknown command")
)

// Bootstrap ids every controller assigns before the dictionary is known.
const (
	identifyResponseID = 0
	identifyID         = 1
)

const (
	identifyChunk = 40
	// maxIdentifyChunks bounds the download if a controller never sends an
	// empty chunk.
	maxIdentifyChunks = 1000
)

// Dictionary is the controller's self-description.
type Dictionary struct {
	Version   string            `json:"version"`
	Config    map[string]string `json:"config"`
	Commands  map[string]int    `json:"commands"`
	Responses map[string]int    `json:"responses"`
}

// Client talks to one controller. Exchanges are serialised; responses that
// nobody waits for are logged and dropped.
type Client struct {
	mu  sync.Mutex
	tr  *protocol.HostTransport
	log *slog.Logger

	dict      *Dictionary
	raw       []byte
	commands  map[string]uint16
	responses map[string]uint16
}

// New wraps an open port.
func New(port io.ReadWriteCloser, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		tr:  protocol.NewHostTransport(port),
		log: log.With("component", "ecu"),
	}
}

// Dial opens the device named by cfg and downloads the dictionary.
func Dial(ctx context.Context, cfg *serial.Config, log *slog.Logger) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	c := New(port, log)
	if err := c.Identify(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the link.
func (c *Client) Close() error {
	return c.tr.Close()
}

// Identify downloads, inflates and parses the dictionary.
func (c *Client) Identify(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var compressed bytes.Buffer
	for i := 0; i < maxIdentifyChunks; i++ {
		offset := uint32(compressed.Len())
		chunk, err := c.identifyChunk(ctx, offset)
		if err != nil {
			return fmt.Errorf("dictionary chunk at %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}
		compressed.Write(chunk)
		if len(chunk) < identifyChunk {
			break
		}
	}
	c.log.Debug("dictionary downloaded", "bytes", compressed.Len())

	zr, err := zlib.NewReader(&compressed)
	if err != nil {
		return fmt.Errorf("inflate dictionary: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return fmt.Errorf("inflate dictionary: %w", err)
	}
	if err := zr.Close(); err != nil {
		return fmt.Errorf("inflate dictionary: %w", err)
	}

	dict := &Dictionary{}
	if err := json.Unmarshal(raw, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	c.raw = raw
	c.dict = dict
	c.commands = indexByName(dict.Commands)
	c.responses = indexByName(dict.Responses)
	c.log.Info("identified controller", "version", dict.Version,
		"commands", len(c.commands), "responses", len(c.responses))
	return nil
}

func (c *Client) identifyChunk(ctx context.Context, offset uint32) ([]byte, error) {
	err := c.tr.Send(ctx, identifyID, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, identifyChunk)
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.await(ctx, identifyResponseID)
	if err != nil {
		return nil, err
	}
	args := protocol.NewArgs(&resp.Args)
	got := args.Uint()
	chunk := args.Bytes()
	if err := args.Err(); err != nil {
		return nil, err
	}
	if got != offset {
		return nil, fmt.Errorf("offset mismatch: asked %d, got %d", offset, got)
	}
	return chunk, nil
}

// indexByName maps the first word of each "name format" key to its id.
func indexByName(entries map[string]int) map[string]uint16 {
	out := make(map[string]uint16, len(entries))
	for msg, id := range entries {
		name, _, _ := strings.Cut(msg, " ")
		out[name] = uint16(id)
	}
	return out
}

// Dictionary returns the parsed dictionary, nil before Identify.
func (c *Client) Dictionary() *Dictionary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dict
}

// RawDictionary returns the inflated dictionary JSON.
func (c *Client) RawDictionary() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw
}

// Constant returns a dictionary constant as an integer.
func (c *Client) Constant(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dict == nil {
		return 0, ErrNoDictionary
	}
	v, ok := c.dict.Config[name]
	if !ok {
		return 0, fmt.Errorf("constant %s not in dictionary", name)
	}
	return strconv.Atoi(v)
}

// CommandID resolves a command or response name.
func (c *Client) CommandID(name string) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lookup(name)
}

func (c *Client) lookup(name string) (uint16, error) {
	if c.dict == nil {
		return 0, ErrNoDictionary
	}
	if id, ok := c.commands[name]; ok {
		return id, nil
	}
	if id, ok := c.responses[name]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
}

// call sends a named command. Caller holds mu.
func (c *Client) call(ctx context.Context, name string, args func(protocol.OutputBuffer)) error {
	id, err := c.lookup(name)
	if err != nil {
		return err
	}
	if err := c.tr.Send(ctx, id, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// request sends a named command and waits for a named response. Caller
// holds mu.
func (c *Client) request(ctx context.Context, name, response string, args func(protocol.OutputBuffer)) (protocol.Response, error) {
	want, err := c.lookup(response)
	if err != nil {
		return protocol.Response{}, err
	}
	if err := c.call(ctx, name, args); err != nil {
		return protocol.Response{}, err
	}
	resp, err := c.await(ctx, want)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("%s: %w", response, err)
	}
	return resp, nil
}

// await returns the next response with id, dropping any other.
func (c *Client) await(ctx context.Context, id uint16) (protocol.Response, error) {
	for {
		resp, err := c.tr.Receive(ctx)
		if err != nil {
			return protocol.Response{}, err
		}
		if resp.ID == id {
			return resp, nil
		}
		c.log.Debug("dropping unexpected response", "id", resp.ID, "want", id)
	}
}

// Clock reads the controller's microsecond clock.
func (c *Client) Clock(ctx context.Context) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.request(ctx, core.CmdGetClock, core.CmdClock, nil)
	if err != nil {
		return 0, err
	}
	args := protocol.NewArgs(&resp.Args)
	clock := args.Uint()
	return clock, args.Err()
}

// Uptime reads the controller's 64-bit microsecond uptime.
func (c *Client) Uptime(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.request(ctx, core.CmdGetUptime, core.CmdUptime, nil)
	if err != nil {
		return 0, err
	}
	args := protocol.NewArgs(&resp.Args)
	high := args.Uint()
	low := args.Uint()
	return uint64(high)<<32 | uint64(low), args.Err()
}

// Status reads the scheduler diagnostics: one status message followed by
// a channel_status per bank.
func (c *Client) Status(ctx context.Context) (core.Diagnostics, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var d core.Diagnostics
	resp, err := c.request(ctx, core.CmdGetStatus, core.CmdStatus, nil)
	if err != nil {
		return d, err
	}
	if err := core.DecodeStatus(&resp.Args, &d); err != nil {
		return d, fmt.Errorf("decode status: %w", err)
	}
	channelID, err := c.lookup(core.CmdChannelStatus)
	if err != nil {
		return d, err
	}
	for range 2 {
		resp, err := c.await(ctx, channelID)
		if err != nil {
			return d, fmt.Errorf("%s: %w", core.CmdChannelStatus, err)
		}
		if err := core.DecodeChannelStatus(&resp.Args, &d); err != nil {
			return d, fmt.Errorf("decode channel status: %w", err)
		}
	}
	return d, nil
}

// TestPulse fires one bench pulse. The controller's refusal comes back as
// the matching core error.
func (c *Client) TestPulse(ctx context.Context, kind core.OutputKind, ch uint8, pulseUS uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	resp, err := c.request(ctx, core.CmdTestPulse, core.CmdTestPulseResult, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, uint32(kind))
		protocol.EncodeVLQUint(out, uint32(ch))
		protocol.EncodeVLQUint(out, pulseUS)
	})
	if err != nil {
		return err
	}
	args := protocol.NewArgs(&resp.Args)
	args.Uint() // kind
	args.Uint() // channel
	code := uint8(args.Uint())
	if err := args.Err(); err != nil {
		return err
	}
	return core.PulseError(code)
}

// EmergencyStop latches every output off until Restart.
func (c *Client) EmergencyStop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, core.CmdEmergencyStop, nil)
}

// Restart clears an emergency stop.
func (c *Client) Restart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call(ctx, core.CmdRestart, nil)
}
