// Package ir provides the value and record types shared by every EDB package.
//
// Attribute values are a sealed set of tagged types (IRString, IRInt, IRBool,
// IRBytes, IRTime, IRObject, IRArray). There are no floats. Every stored value
// carries its ValueType tag so that a round trip through the store never
// changes its kind.
//
// ir imports nothing internal; all other packages import ir.
package ir
