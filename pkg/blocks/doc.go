// Package blocks defines the component registry used by the document
// compiler: a table of type names mapped to render capabilities and field
// schemas.
//
// A component declares its accepted fields (text, number, select, slot) and a
// pure render function. The registry is assembled once at process start as
// static data; there are no mutation operations. Lookups of unknown type
// names report absence rather than failing, which lets the compiler skip
// unrecognized blocks without aborting the containing document.
//
// Example:
//
//	reg := blocks.Default()
//	def, ok := reg.Lookup("Heading")
//	if ok {
//	    fragment := def.Render(blocks.ModeHTML, props, nil)
//	}
package blocks
