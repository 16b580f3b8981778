package fim

import (
	"fmt"
	"strings"

	"fim-go/internal/model"
)

// Field names a record attribute that can differ between two snapshots.
type Field int

const (
	FieldHash Field = iota
	FieldTarget
	FieldModified
	FieldPermissions
	FieldSize
)

func (f Field) String() string {
	switch f {
	case FieldHash:
		return "hash"
	case FieldTarget:
		return "target"
	case FieldModified:
		return "modified time"
	case FieldPermissions:
		return "permissions"
	case FieldSize:
		return "size"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// Delta is one changed attribute, rendered for humans.
type Delta struct {
	Field Field
	Old   string
	New   string
}

func (d Delta) String() string {
	return fmt.Sprintf("%s changed %s -> %s", d.Field, d.Old, d.New)
}

// Change describes how a path's record differs from the stored one.
type Change struct {
	Old        model.Record
	New        model.Record
	Structural bool // the entry changed variant, e.g. file to symlink
	Deltas     []Delta
}

// Description renders the change in one line.
func (c Change) Description() string {
	if c.Structural {
		return fmt.Sprintf("%s changed to %s", c.Old, c.New)
	}
	parts := make([]string, len(c.Deltas))
	for i, d := range c.Deltas {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}

// TimeOnly reports whether the modification time is the only delta.
func (c Change) TimeOnly() bool {
	return !c.Structural && len(c.Deltas) == 1 && c.Deltas[0].Field == FieldModified
}

// Diff classifies the difference between a stored record and a freshly
// observed one. reportable is false when the records are equal, or when
// only the modification time differs and compareTime is off. A change of
// variant is always reportable.
func Diff(old, new model.Record, compareTime bool) (change Change, reportable bool) {
	change = Change{Old: old, New: new}
	if old == new {
		return change, false
	}
	if old.Kind != new.Kind {
		change.Structural = true
		return change, true
	}

	switch old.Kind {
	case model.KindFile:
		if old.Hash != new.Hash {
			change.Deltas = append(change.Deltas, Delta{FieldHash, old.Hash.String(), new.Hash.String()})
		}
	case model.KindSymlink:
		if old.Target != new.Target {
			change.Deltas = append(change.Deltas, Delta{FieldTarget, old.Target, new.Target})
		}
	}
	if old.Modified != new.Modified {
		change.Deltas = append(change.Deltas, Delta{FieldModified, model.FormatModified(old.Modified), model.FormatModified(new.Modified)})
	}
	if old.Permissions != new.Permissions {
		change.Deltas = append(change.Deltas, Delta{FieldPermissions, fmt.Sprintf("%o", old.Permissions), fmt.Sprintf("%o", new.Permissions)})
	}
	if old.Size != new.Size {
		change.Deltas = append(change.Deltas, Delta{FieldSize, fmt.Sprint(old.Size), fmt.Sprint(new.Size)})
	}

	if change.TimeOnly() && !compareTime {
		return change, false
	}
	return change, len(change.Deltas) > 0
}
