// Package codegen lowers VM commands to Hack assembly.
//
// An Engine owns one output stream and the machine state threaded through
// it: the ROM instruction counter used for comparison branches, the stack of
// open functions used to scope labels, the call-site counter behind return
// labels and the unit name that qualifies statics.
package codegen
