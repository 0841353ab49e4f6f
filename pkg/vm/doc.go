// Package vm defines the stack VM command set and parses VM source text
// into commands.
//
// Pipeline: VM source → Parse → []Command → codegen.Engine → Hack assembly
package vm
