package catalog

import "fmt"

// DuplicateTagError reports two tags sharing a name within one scope.
// This is a controller metadata integrity failure and always aborts the
// build: no partial catalog is returned.
type DuplicateTagError struct {
	Name    string
	Program string
}

func (e *DuplicateTagError) Error() string {
	if e.Program != "" {
		return fmt.Sprintf("duplicate tag %q in program %q", e.Name, e.Program)
	}
	return fmt.Sprintf("duplicate tag %q in controller scope", e.Name)
}

// CycleError reports a self-referential structure template, which would
// otherwise recurse forever during expansion.
type CycleError struct {
	StructName string
	TypeCode   uint16
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("structure %q (0x%04X) references itself", e.StructName, e.TypeCode)
}
