// Package oracle parses the plain-text oracle corpus into card rulings.
//
// The corpus is a sequence of blocks separated by blank lines. Each block
// holds a name, an optional cost line, a type line and any number of rules
// text lines. Malformed blocks are skipped rather than reported so one bad
// entry never costs the whole refresh.
package oracle
