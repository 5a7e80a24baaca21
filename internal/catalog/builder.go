// Package catalog enumerates the tags a controller exposes and
// normalizes their browse metadata into TagDescriptors.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Sgtscottadams/ab-poller/internal/decode"
	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
)

// Options controls one catalog build.
type Options struct {
	// BestEffort returns a partial catalog plus per-scope issues when a
	// scope cannot be browsed, instead of failing the whole build.
	// Duplicate tags and template cycles remain fatal either way.
	BestEffort bool
	// BrowseRate caps driver browse calls per second. Zero disables
	// pacing. Nested template expansion otherwise hammers slow links.
	BrowseRate rate.Limit
}

// Result is a finished build: the ordered catalog and, in best-effort
// mode, the scopes or tags that could not be fully resolved.
type Result struct {
	Tags   []models.TagDescriptor
	Issues []string
}

// Builder expands browse metadata into a catalog. Structure layouts are
// fetched once per type code and cached, so repeated UDT usage costs a
// single template round-trip.
type Builder struct {
	conn      plc.Connection
	opts      Options
	limiter   *rate.Limiter
	templates map[uint16][]models.TagDescriptor
	expanding map[uint16]bool
	issues    []string
}

// NewBuilder creates a builder over an open controller connection.
func NewBuilder(conn plc.Connection, opts Options) *Builder {
	var limiter *rate.Limiter
	if opts.BrowseRate > 0 {
		limiter = rate.NewLimiter(opts.BrowseRate, 1)
	}
	return &Builder{
		conn:      conn,
		opts:      opts,
		limiter:   limiter,
		templates: make(map[uint16][]models.TagDescriptor),
		expanding: make(map[uint16]bool),
	}
}

// Build enumerates controller-scoped tags, then each program scope, in
// discovery order. Transport failures abort the build atomically unless
// best-effort mode was requested.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	var tags []models.TagDescriptor

	controllerTags, err := b.browseScope(ctx, "")
	if err != nil {
		if !b.opts.BestEffort {
			return nil, err
		}
		b.issues = append(b.issues, fmt.Sprintf("controller scope: %v", err))
	}
	tags = append(tags, controllerTags...)

	programs, err := b.programs(ctx)
	if err != nil {
		if !b.opts.BestEffort {
			return nil, err
		}
		b.issues = append(b.issues, fmt.Sprintf("program list: %v", err))
	}

	for _, prog := range programs {
		progTags, err := b.browseScope(ctx, prog)
		if err != nil {
			if !b.opts.BestEffort {
				return nil, err
			}
			b.issues = append(b.issues, fmt.Sprintf("program %q: %v", prog, err))
			continue
		}
		tags = append(tags, progTags...)
	}

	if err := rejectDuplicates(tags); err != nil {
		return nil, err
	}

	return &Result{Tags: tags, Issues: b.issues}, nil
}

func (b *Builder) programs(ctx context.Context) ([]string, error) {
	if err := b.pace(ctx); err != nil {
		return nil, err
	}
	return b.conn.Programs(ctx)
}

// browseScope merges all pages of one scope, preserving discovery order.
func (b *Builder) browseScope(ctx context.Context, program string) ([]models.TagDescriptor, error) {
	var out []models.TagDescriptor
	cursor := uint32(0)
	for {
		if err := b.pace(ctx); err != nil {
			return nil, err
		}
		page, err := b.conn.BrowseTags(ctx, program, cursor)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Tags {
			desc, err := b.normalize(ctx, raw, program)
			if err != nil {
				if b.recoverable(err) {
					b.issues = append(b.issues, fmt.Sprintf("tag %q: %v", raw.Name, err))
					continue
				}
				return nil, err
			}
			out = append(out, *desc)
		}
		if page.Done {
			return out, nil
		}
		cursor = page.Next
	}
}

// recoverable reports whether a per-tag normalization error may be
// skipped in best-effort mode. Integrity errors never are.
func (b *Builder) recoverable(err error) bool {
	if !b.opts.BestEffort {
		return false
	}
	switch err.(type) {
	case *CycleError, *DuplicateTagError:
		return false
	}
	return !plc.IsConnError(err)
}

func (b *Builder) normalize(ctx context.Context, raw plc.RawTag, program string) (*models.TagDescriptor, error) {
	dt, ok := decode.DataTypeForCode(raw.TypeCode)
	if !ok {
		return nil, fmt.Errorf("%w: 0x%04X", decode.ErrUnknownType, raw.TypeCode)
	}

	desc := &models.TagDescriptor{
		Name:       qualifyName(raw.Name, program),
		DataType:   dt,
		TypeCode:   raw.TypeCode,
		StructName: raw.StructName,
		Scope:      models.ScopeController,
		Dimensions: append([]int(nil), raw.Dimensions...),
	}
	if program != "" {
		desc.Scope = models.ScopeProgram
		desc.Program = program
	}

	if dt == models.DataTypeStruct {
		members, err := b.expandTemplate(ctx, raw.TypeCode, raw.StructName)
		if err != nil {
			return nil, err
		}
		desc.Members = members
	}
	return desc, nil
}

// expandTemplate resolves a structure's member layout, caching by type
// code so each UDT costs one browse regardless of how often it appears.
func (b *Builder) expandTemplate(ctx context.Context, typeCode uint16, structName string) ([]models.TagDescriptor, error) {
	if cached, ok := b.templates[typeCode]; ok {
		return cached, nil
	}
	if b.expanding[typeCode] {
		return nil, &CycleError{StructName: structName, TypeCode: typeCode}
	}
	b.expanding[typeCode] = true
	defer delete(b.expanding, typeCode)

	if err := b.pace(ctx); err != nil {
		return nil, err
	}
	rawMembers, err := b.conn.BrowseTemplate(ctx, typeCode, structName)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", structName, err)
	}

	members := make([]models.TagDescriptor, 0, len(rawMembers))
	for _, m := range rawMembers {
		// Host members of the template (e.g. "__" prefixed internals)
		// are not addressable and stay out of the catalog.
		if strings.HasPrefix(m.Name, "__") {
			continue
		}
		dt, ok := decode.DataTypeForCode(m.TypeCode)
		if !ok {
			return nil, fmt.Errorf("template %q member %q: %w: 0x%04X", structName, m.Name, decode.ErrUnknownType, m.TypeCode)
		}
		member := models.TagDescriptor{
			Name:       m.Name,
			DataType:   dt,
			TypeCode:   m.TypeCode,
			StructName: m.StructName,
			Dimensions: append([]int(nil), m.Dimensions...),
		}
		if dt == models.DataTypeStruct {
			nested, err := b.expandTemplate(ctx, m.TypeCode, m.StructName)
			if err != nil {
				return nil, err
			}
			member.Members = nested
		}
		members = append(members, member)
	}

	b.templates[typeCode] = members
	return members, nil
}

func (b *Builder) pace(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

func rejectDuplicates(tags []models.TagDescriptor) error {
	seen := make(map[string]map[string]bool)
	for i := range tags {
		scope := tags[i].Program
		if seen[scope] == nil {
			seen[scope] = make(map[string]bool)
		}
		if seen[scope][tags[i].Name] {
			return &DuplicateTagError{Name: tags[i].Name, Program: tags[i].Program}
		}
		seen[scope][tags[i].Name] = true
	}
	return nil
}

// qualifyName prefixes program-local tag names the way the controller
// addresses them ("Program:<name>.<tag>").
func qualifyName(name, program string) string {
	if program == "" || strings.HasPrefix(name, "Program:") {
		return name
	}
	return fmt.Sprintf("Program:%s.%s", program, name)
}
