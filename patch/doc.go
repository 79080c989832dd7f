// Package patch implements the repair-loop patch boundary: the delimited
// block wire format and an LLM-backed generator speaking it.
//
// A patch response carries zero or more blocks of the form
//
//	<<FILENAME:path>>
//	<replacement content>
//	<<END>>
//
// Parse tolerates anything outside the delimiters and never fails; a
// malformed response simply degrades to an empty update map so the repair
// loop keeps moving.
package patch
