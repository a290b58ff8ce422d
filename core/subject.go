package core

import "fmt"

// SubjectKind discriminates the Subject variants
type SubjectKind string

const (
	SubjectKindProcess SubjectKind = "process"
	SubjectKindBusName SubjectKind = "bus-name"
	SubjectKindSession SubjectKind = "session"
)

// Subject identifies who is asking for an authorization, or who the action
// is performed as. Subjects are immutable values compared by structural
// equality.
type Subject interface {
	Kind() SubjectKind
	String() string
	Equal(other Subject) bool
}

// ProcessSubject identifies a running process by pid and start time. The
// start time disambiguates recycled pids.
type ProcessSubject struct {
	Pid       int32
	StartTime uint64
}

func (p ProcessSubject) Kind() SubjectKind {
	return SubjectKindProcess
}

func (p ProcessSubject) String() string {
	return fmt.Sprintf("process:%d:%d", p.Pid, p.StartTime)
}

func (p ProcessSubject) Equal(other Subject) bool {
	o, ok := other.(ProcessSubject)
	return ok && o.Pid == p.Pid && o.StartTime == p.StartTime
}

// BusNameSubject identifies a client by its unique transport (message bus)
// name. Bus names are ephemeral: the owner can disconnect at any time, so a
// BusNameSubject is usually resolved to the owning ProcessSubject before
// being stored durably.
type BusNameSubject struct {
	Name string
}

func (b BusNameSubject) Kind() SubjectKind {
	return SubjectKindBusName
}

func (b BusNameSubject) String() string {
	return "bus-name:" + b.Name
}

func (b BusNameSubject) Equal(other Subject) bool {
	o, ok := other.(BusNameSubject)
	return ok && o.Name == b.Name
}

// SessionSubject identifies a login session.
type SessionSubject struct {
	ID string
}

func (s SessionSubject) Kind() SubjectKind {
	return SubjectKindSession
}

func (s SessionSubject) String() string {
	return "session:" + s.ID
}

func (s SessionSubject) Equal(other Subject) bool {
	o, ok := other.(SessionSubject)
	return ok && o.ID == s.ID
}
