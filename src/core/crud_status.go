package core

import (
	"fmt"
	"strconv"
)

// CrudStatus is the lifecycle tag attached to an entry address in the DHT
// metadata store. Statuses are bit flags so lookups can filter on masks, but
// an entry's current status is always exactly one flag; each transition is a
// new EAV row, never an in-place mutation.
type CrudStatus uint8

const (
	// StatusLive is the status of a successfully held entry.
	StatusLive CrudStatus = 1 << iota
	// StatusRejected marks an entry that failed validation at a holder.
	StatusRejected
	// StatusDeleted marks an entry removed by a Deletion entry.
	StatusDeleted
	// StatusModified marks an entry superseded by an update.
	StatusModified
	// StatusLocked marks an entry undergoing conflict resolution.
	StatusLocked
)

// String renders the status as the decimal bit value. Only explicit single
// statuses are safe as strings; the string form is what gets stored as the
// value of crud-status EAV rows.
func (s CrudStatus) String() string {
	switch s {
	case StatusLive, StatusRejected, StatusDeleted, StatusModified, StatusLocked:
		return strconv.Itoa(int(s))
	}
	panic(fmt.Sprintf("not a single crud status: %d", s))
}

// ParseCrudStatus reads a status back from its stored string form.
func ParseCrudStatus(s string) (CrudStatus, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid crud status %q: %v", s, err)
	}
	status := CrudStatus(v)
	switch status {
	case StatusLive, StatusRejected, StatusDeleted, StatusModified, StatusLocked:
		return status, nil
	}
	return 0, fmt.Errorf("invalid crud status %q", s)
}
