// Package plcsim is an in-process controller simulator implementing the
// plc.Driver contract. It backs the test suite and the server's
// simulation mode; it is not a wire-accurate CIP stack.
package plcsim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Sgtscottadams/ab-poller/internal/plc"
)

// DefaultPageSize is how many tags one browse page carries.
const DefaultPageSize = 2

type simTag struct {
	raw   plc.RawTag
	value []byte
}

// Device is a simulated controller: an ordered tag table, structure
// templates, and fault injection knobs.
type Device struct {
	mu        sync.RWMutex
	tags      []*simTag
	byName    map[string]*simTag
	templates map[uint16][]plc.Member
	programs  []string
	failReads map[string]error
	offline   bool
	pageSize  int
}

// New creates an empty simulated controller.
func New() *Device {
	return &Device{
		byName:    make(map[string]*simTag),
		templates: make(map[uint16][]plc.Member),
		failReads: make(map[string]error),
		pageSize:  DefaultPageSize,
	}
}

// SetPageSize overrides the browse page size (minimum 1).
func (d *Device) SetPageSize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 1 {
		n = 1
	}
	d.pageSize = n
}

// AddTag registers a tag with its current raw value. Discovery order
// follows registration order.
func (d *Device) AddTag(raw plc.RawTag, value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &simTag{raw: raw, value: value}
	d.tags = append(d.tags, t)
	d.byName[raw.Name] = t
	if raw.Program != "" && !contains(d.programs, raw.Program) {
		d.programs = append(d.programs, raw.Program)
	}
}

// AddTemplate registers a structure template layout for a type code.
func (d *Device) AddTemplate(typeCode uint16, members []plc.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.templates[typeCode] = members
}

// SetValue replaces a tag's raw value.
func (d *Device) SetValue(name string, raw []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.byName[name]; ok {
		t.value = raw
	}
}

// FailRead makes reads of the named tag return err; nil clears the fault.
func (d *Device) FailRead(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failReads, name)
		return
	}
	d.failReads[name] = err
}

// SetOffline simulates losing the network link: every driver call on an
// open connection fails with a ConnError until the device is back online.
func (d *Device) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

// Connect implements plc.Driver.
func (d *Device) Connect(ctx context.Context, address string, slot int) (plc.Connection, error) {
	d.mu.RLock()
	offline := d.offline
	d.mu.RUnlock()
	if offline {
		return nil, &plc.ConnError{Address: address, Op: "connect", Err: errors.New("no route to controller")}
	}
	return &conn{dev: d, address: address}, nil
}

type conn struct {
	dev     *Device
	address string
	closed  bool
}

func (c *conn) check(op string) error {
	c.dev.mu.RLock()
	offline := c.dev.offline
	c.dev.mu.RUnlock()
	if c.closed {
		return &plc.ConnError{Address: c.address, Op: op, Err: errors.New("connection closed")}
	}
	if offline {
		return &plc.ConnError{Address: c.address, Op: op, Err: errors.New("connection lost")}
	}
	return nil
}

func (c *conn) Programs(ctx context.Context) ([]string, error) {
	if err := c.check("programs"); err != nil {
		return nil, err
	}
	c.dev.mu.RLock()
	defer c.dev.mu.RUnlock()
	out := make([]string, len(c.dev.programs))
	copy(out, c.dev.programs)
	return out, nil
}

func (c *conn) BrowseTags(ctx context.Context, program string, cursor uint32) (plc.TagPage, error) {
	if err := c.check("browse"); err != nil {
		return plc.TagPage{}, err
	}
	c.dev.mu.RLock()
	defer c.dev.mu.RUnlock()

	var scoped []plc.RawTag
	for _, t := range c.dev.tags {
		if t.raw.Program == program {
			scoped = append(scoped, t.raw)
		}
	}

	start := int(cursor)
	if start >= len(scoped) {
		return plc.TagPage{Done: true}, nil
	}
	end := start + c.dev.pageSize
	if end > len(scoped) {
		end = len(scoped)
	}
	return plc.TagPage{
		Tags: scoped[start:end],
		Next: uint32(end),
		Done: end == len(scoped),
	}, nil
}

func (c *conn) BrowseTemplate(ctx context.Context, typeCode uint16, structName string) ([]plc.Member, error) {
	if err := c.check("browse-template"); err != nil {
		return nil, err
	}
	c.dev.mu.RLock()
	defer c.dev.mu.RUnlock()
	members, ok := c.dev.templates[typeCode]
	if !ok {
		return nil, fmt.Errorf("template 0x%04X (%s): not found", typeCode, structName)
	}
	out := make([]plc.Member, len(members))
	copy(out, members)
	return out, nil
}

func (c *conn) Read(ctx context.Context, tagNames []string) (map[string]plc.ReadResult, error) {
	if err := c.check("read"); err != nil {
		return nil, err
	}
	c.dev.mu.RLock()
	defer c.dev.mu.RUnlock()

	out := make(map[string]plc.ReadResult, len(tagNames))
	for _, name := range tagNames {
		if err, faulted := c.dev.failReads[name]; faulted {
			out[name] = plc.ReadResult{Err: err}
			continue
		}
		t, ok := c.dev.byName[name]
		if !ok {
			out[name] = plc.ReadResult{Err: fmt.Errorf("tag %s: not found", name)}
			continue
		}
		raw := make([]byte, len(t.value))
		copy(raw, t.value)
		out[name] = plc.ReadResult{Raw: raw}
	}
	return out, nil
}

func (c *conn) Write(ctx context.Context, tagName string, raw []byte) error {
	if err := c.check("write"); err != nil {
		return err
	}
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	t, ok := c.dev.byName[tagName]
	if !ok {
		return fmt.Errorf("tag %s: not found", tagName)
	}
	t.value = make([]byte, len(raw))
	copy(t.value, raw)
	return nil
}

func (c *conn) Disconnect() error {
	c.closed = true
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
