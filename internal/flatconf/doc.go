// Package flatconf converts nested configuration values into the flat,
// path-addressed text encoding read by packet-processing children.
//
// Every node of the tree is addressed by a path. Mapping children are
// appended as "/<key>", list elements as "[<index>]". Each line is the path
// followed by a single space and a payload:
//
//	/:type dict
//	/:length 2
//	/:keys[0] a
//	/a/:type bool
//	/a/ 1
//	/:keys[1] b
//	/b/:type list
//	/b/:length 2
//	/b[0]/:type num
//	/b[0]/ 1
//	/b[1]/:type num
//	/b[1]/ 2
//
// Mapping keys are emitted in ascending order so the same tree always
// produces byte-identical output.
package flatconf
