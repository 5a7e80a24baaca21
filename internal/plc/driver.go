// Package plc defines the boundary to the EtherNet/IP protocol driver.
// The poller never manages the transport session itself: it issues the
// calls below and reacts to their typed results. Real drivers wrap a
// CIP/EtherNet-IP stack; tests and simulation mode use plcsim.
package plc

import "context"

// RawTag is one entry of controller browse metadata before catalog
// normalization. Program is empty for controller-scoped tags.
type RawTag struct {
	Name       string
	TypeCode   uint16
	StructName string
	Dimensions []int
	Program    string
}

// TagPage is one page of browse results. Next is the continuation
// cursor for the following page; Done is set on the final page.
type TagPage struct {
	Tags []RawTag
	Next uint32
	Done bool
}

// Member describes one member of a structure template, in declared order.
type Member struct {
	Name       string
	TypeCode   uint16
	StructName string
	Dimensions []int
}

// ReadResult is the raw outcome of reading one tag. Err is per-tag:
// a failed tag does not invalidate the rest of the batch.
type ReadResult struct {
	Raw []byte
	Err error
}

// Driver opens sessions to controllers.
type Driver interface {
	Connect(ctx context.Context, address string, slot int) (Connection, error)
}

// Connection is an open session to one controller. Implementations own
// read timeouts; callers treat a timed-out read like any other failure.
type Connection interface {
	// Programs lists the program units present on the controller.
	Programs(ctx context.Context) ([]string, error)
	// BrowseTags returns one page of tag metadata for the given scope
	// (empty program = controller scope), starting at cursor.
	BrowseTags(ctx context.Context, program string, cursor uint32) (TagPage, error)
	// BrowseTemplate returns the member layout of a structure type.
	BrowseTemplate(ctx context.Context, typeCode uint16, structName string) ([]Member, error)
	// Read returns raw bytes per tag, batched in one round-trip.
	Read(ctx context.Context, tagNames []string) (map[string]ReadResult, error)
	// Write sends raw bytes to one tag.
	Write(ctx context.Context, tagName string, raw []byte) error
	Disconnect() error
}
