// Package expression parses contract conditions and rewrites old() references.
//
// Conditions are written in the Go expression grammar. A condition is parsed
// once into a Tree; old(x) occurrences are located with FindOldReferences and
// replaced with capture-store lookups by Rewrite. Rewriting edits only the
// spans it replaces, so the rest of the condition text is kept byte for byte.
package expression
