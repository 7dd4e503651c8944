// Package graph assembles an immutable dependency graph over a resource
// snapshot and answers ordering, cycle, and reachability questions about it.
package graph
