package core

import (
	"errors"
	"sync"
)

var ErrUnknownCommand = errors.New("unknown command id")

// CommandHandler decodes its own arguments from data, advancing the slice
// past what it consumed.
type CommandHandler func(data *[]byte) error

// Command is one entry of the link dictionary. Entries without a handler
// are responses the firmware sends.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "kind=%c channel=%c us=%u"
	Handler CommandHandler
}

// IsResponse reports whether the entry is sent rather than handled.
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// CommandRegistry numbers commands and responses in registration order.
// Order matters: the host bootstraps with identify_response = 0 and
// identify = 1.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{nameToID: make(map[string]uint16)}
}

// Register adds a command, or a response when handler is nil. Registering
// a name twice returns the first id.
func (r *CommandRegistry) Register(name, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.nameToID[name]; ok {
		return id
	}
	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{ID: id, Name: name, Format: format, Handler: handler})
	r.nameToID[name] = id
	return id
}

// RegisterResponse adds a firmware-to-host message.
func (r *CommandRegistry) RegisterResponse(name, format string) uint16 {
	return r.Register(name, format, nil)
}

// Command looks up an entry by id.
func (r *CommandRegistry) Command(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// ID looks up an entry by name.
func (r *CommandRegistry) ID(name string) (uint16, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	return id, ok
}

// Count returns the number of entries.
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Entries returns every entry in id order.
func (r *CommandRegistry) Entries() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, len(r.commands))
	for i, c := range r.commands {
		out[i] = *c
	}
	return out
}

// Dispatch runs the handler for cmdID. Responses and unknown ids are
// rejected with ErrUnknownCommand.
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.Command(cmdID)
	if !ok || cmd.Handler == nil {
		return ErrUnknownCommand
	}
	return cmd.Handler(data)
}
