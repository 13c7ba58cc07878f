// Package compiler turns a declarative block tree into a renderable email
// artifact: a full HTML document plus a plain-text alternative.
//
// Compilation is a depth-first post-order walk over the tree. Each node is
// resolved against a component registry; nodes with unknown types or a
// malformed shape contribute an empty fragment instead of failing, so a
// single unrecognized block never aborts the whole document. Props are
// sanitized against the component's field schema before its render function
// runs, and compiled child fragments are delivered either through the
// schema's slot field or the generic children channel.
//
// Both render passes are pure functions of the input tree and registry:
// compiling the same tree twice yields byte-identical output, so a document
// previewed interactively and compiled again at delivery time produces the
// same artifact.
package compiler
