// Package domain defines the cross-screening network index: a
// subject-subject graph accumulated from completed screenings.
// Nodes are keyed by canonical full name; collapsing or splitting
// same-named people is the entity-merge path, which lives outside
// this index
package domain

import (
	"context"
	"time"

	"backcheck/internal/core/subject"
	screeningdom "backcheck/internal/services/screening/domain"
)

// ConnectionType classifies one subject-subject edge
type ConnectionType string

// Connection types. The first six come from direct observations in a
// single screening; the shared-* and neighbor types are derived by
// joining observations across screenings
const (
	ConnEmployer        ConnectionType = "employer"
	ConnColleague       ConnectionType = "colleague"
	ConnBusinessPartner ConnectionType = "business-partner"
	ConnDirector        ConnectionType = "director"
	ConnAddress         ConnectionType = "address"
	ConnFamily          ConnectionType = "family"
	ConnAssociate       ConnectionType = "associate"
	ConnSharedFinding   ConnectionType = "shared-finding"
	ConnSharedSource    ConnectionType = "shared-source"
	ConnNetworkNeighbor ConnectionType = "network-neighbor"
)

// Known reports whether t is in the closed connection-type vocabulary
func (t ConnectionType) Known() bool {
	switch t {
	case ConnEmployer, ConnColleague, ConnBusinessPartner, ConnDirector,
		ConnAddress, ConnFamily, ConnAssociate, ConnSharedFinding,
		ConnSharedSource, ConnNetworkNeighbor:
		return true
	}
	return false
}

// Strength grades the reliability of an edge
type Strength string

// Edge strengths, weakest first
const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
	StrengthVerified Strength = "verified"
)

// Rank orders strengths for monotonic upgrades. Unknown values rank
// below weak so they never displace a stored strength
func (s Strength) Rank() int {
	switch s {
	case StrengthWeak:
		return 1
	case StrengthModerate:
		return 2
	case StrengthStrong:
		return 3
	case StrengthVerified:
		return 4
	}
	return 0
}

// ParseStrength maps a free-form provider strength onto the closed set
func ParseStrength(s string) (Strength, bool) {
	switch st := Strength(subject.Canon(s)); st {
	case StrengthWeak, StrengthModerate, StrengthStrong, StrengthVerified:
		return st, true
	}
	return "", false
}

// NodeKey derives the graph node identifier for a subject
func NodeKey(s subject.Subject) string { return subject.Canon(s.FullName) }

// Edge is one stored subject-subject connection. Endpoints are kept
// ordered (SubjectA < SubjectB) so each pair and type stores exactly
// one row; strength only ever upgrades. TenantID records which tenant's
// screening produced the observation, it does not scope visibility
type Edge struct {
	SubjectA   string         `json:"subject_a"`
	SubjectB   string         `json:"subject_b"`
	Type       ConnectionType `json:"type"`
	Strength   Strength       `json:"strength"`
	Evidence   string         `json:"evidence,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	ObservedAt time.Time      `json:"observed_at"`
}

// Normalize returns the edge with ordered endpoints
func (e Edge) Normalize() Edge {
	if e.SubjectB < e.SubjectA {
		e.SubjectA, e.SubjectB = e.SubjectB, e.SubjectA
	}
	return e
}

// Other returns the endpoint that is not id
func (e Edge) Other(id string) string {
	if e.SubjectA == id {
		return e.SubjectB
	}
	return e.SubjectA
}

// ObsKind is the join axis for shared-value edge derivation
type ObsKind string

// Observation kinds
const (
	ObsEmployer    ObsKind = "employer"
	ObsDirectorOrg ObsKind = "director_org"
	ObsOrg         ObsKind = "org"
	ObsAddress     ObsKind = "address"
	ObsFinding     ObsKind = "finding"
	ObsSource      ObsKind = "source"
)

// Observation is one indexed per-subject value that later screenings
// join against. Values are canonical
type Observation struct {
	SubjectID   string    `json:"subject_id"`
	Kind        ObsKind   `json:"kind"`
	Value       string    `json:"value"`
	TenantID    string    `json:"tenant_id,omitempty"`
	ScreeningID string    `json:"screening_id,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
}

// Connection is one query result: a node reachable from the queried
// subject, reported with the edge that reached it. Degree 1 is direct;
// Via names the preceding hop for anything further out
type Connection struct {
	SubjectID string         `json:"subject_id"`
	Type      ConnectionType `json:"type"`
	Strength  Strength       `json:"strength"`
	Degree    int            `json:"degree"`
	Via       string         `json:"via,omitempty"`
	Evidence  string         `json:"evidence,omitempty"`
}

// Node is one graph vertex with its hop distance from the center
type Node struct {
	ID     string `json:"id"`
	Degree int    `json:"degree"`
}

// Graph is a bounded neighborhood around one subject, represented as
// a node list and an edge list rather than linked structures so cycles
// stay harmless
type Graph struct {
	Center string `json:"center"`
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
}

// IndexPort is the cross-screening network surface. IndexScreening is
// fed out of band on screening completion and must never fail the
// screening that triggered it
type IndexPort interface {
	screeningdom.IndexerPort

	Query(ctx context.Context, subjectID string, maxDegree int, types ...ConnectionType) ([]Connection, error)
	NetworkGraph(ctx context.Context, center string, maxDepth int) (Graph, error)
}

// Match is one shared-observation hit: another subject holding the
// same value under the same kind
type Match struct {
	SubjectID string
	Value     string
}

// StorageRepo is the persistence surface for the index
type StorageRepo interface {
	PutObservations(ctx context.Context, obs []Observation) error

	// UpsertEdges stores edges, upgrading strength on conflict and
	// never downgrading
	UpsertEdges(ctx context.Context, edges []Edge) error

	// Matches returns subjects other than exclude sharing any of the
	// values under kind
	Matches(ctx context.Context, kind ObsKind, values []string, exclude string) ([]Match, error)

	// Neighbors returns every edge touching any of the given subjects
	Neighbors(ctx context.Context, subjectIDs []string) ([]Edge, error)
}
