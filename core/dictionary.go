package core

import (
	"sync"

	"sparkcore/tinycompress"
)

// Dictionary is the self-description the host downloads with identify: the
// firmware version, its constants and every command and response with its
// id. It is JSON, zlib-wrapped, served in chunks.
type Dictionary struct {
	mu        sync.Mutex
	registry  *CommandRegistry
	version   string
	constants map[string]string
	cached    []byte
}

// NewDictionary creates a dictionary over a registry.
func NewDictionary(registry *CommandRegistry, version string) *Dictionary {
	return &Dictionary{
		registry:  registry,
		version:   version,
		constants: make(map[string]string),
	}
}

// SetConstant publishes a named value. Constants added after the first
// chunk was served invalidate the cached copy.
func (d *Dictionary) SetConstant(name, value string) {
	d.mu.Lock()
	d.constants[name] = value
	d.cached = nil
	d.mu.Unlock()
}

// SetConstantUint publishes a numeric constant.
func (d *Dictionary) SetConstantUint(name string, value uint32) {
	d.SetConstant(name, utoa(value))
}

// Bytes returns the compressed dictionary, building it on first use.
func (d *Dictionary) Bytes() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		d.cached = tinycompress.Compress(d.buildJSON())
	}
	return d.cached
}

// Chunk returns up to count bytes of the compressed dictionary starting at
// offset. An empty chunk marks the end.
func (d *Dictionary) Chunk(offset uint32, count uint8) []byte {
	data := d.Bytes()
	if offset >= uint32(len(data)) {
		return nil
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// buildJSON writes the dictionary by hand; the firmware build has no
// reflection-based encoder. Caller holds mu.
func (d *Dictionary) buildJSON() []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendQuoted(out, d.version)

	out = append(out, `,"config":{`...)
	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sortStrings(names)
	for i, name := range names {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, d.constants[name])
	}

	entries := d.registry.Entries()
	out = append(out, `},"commands":{`...)
	out = appendEntries(out, entries, false)
	out = append(out, `},"responses":{`...)
	out = appendEntries(out, entries, true)
	out = append(out, "}}"...)
	return out
}

func appendEntries(out []byte, entries []Command, responses bool) []byte {
	first := true
	for i := range entries {
		c := &entries[i]
		if c.IsResponse() != responses {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		first = false
		msg := c.Name
		if c.Format != "" {
			msg += " " + c.Format
		}
		out = appendQuoted(out, msg)
		out = append(out, ':')
		out = append(out, utoa(uint32(c.ID))...)
	}
	return out
}

// appendQuoted appends s as a JSON string. Names and formats are plain
// ASCII; only quote and backslash need escaping.
func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return append(out, '"')
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
