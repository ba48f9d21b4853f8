package graph

import (
	"fmt"
	"strings"
)

type DuplicateNodeError struct {
	Name string
}

func (e DuplicateNodeError) Error() string {
	return fmt.Sprintf("node %q declared more than once", e.Name)
}

type UnknownDependencyError struct {
	Node, Dependency string
}

func (e UnknownDependencyError) Error() string {
	return fmt.Sprintf("node %q depends on unknown node %q", e.Node, e.Dependency)
}

// CycleError lists the nodes of one cycle, starting and ending on the same node
type CycleError struct {
	Path []string
}

func (e CycleError) Error() string {
	return "dependency cycle detected: " + strings.Join(e.Path, " -> ")
}

type NilNodeError struct {
	Name string
}

func (e NilNodeError) Error() string {
	return fmt.Sprintf("node %q has no system or renderer", e.Name)
}

// PanicError is recorded for a node whose body or frame setup panicked
type PanicError struct {
	Value any
}

func (e PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// NodeError is a failure returned by a node body during a tick
type NodeError struct {
	Node string
	Tick uint64
	Err  error
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %q failed on tick %d: %v", e.Node, e.Tick, e.Err)
}

func (e NodeError) Unwrap() error {
	return e.Err
}
