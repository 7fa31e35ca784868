// Package model describes the base objects manipulated by treemon.
//
// The object model for treemon is composed of:
//
//	Objects:
//	  Immutable, content-addressed by a 256-bit checksum. There are four types:
//	  files (content plus a small header with ownership, mode and extended attributes),
//	  dirtrees (sorted listing of a directory), dirmetas (ownership and mode of a directory)
//	  and commits (a root dirtree and dirmeta, a parent, a message and metadata).
//
//	Refs:
//	  Mutable names pointing to a commit. Refs may be scoped by a remote, as in "remote:ref".
//
//	Deployments:
//	  A checked out commit for some operating system, identified by (osname, checksum, serial).
//	  The ordered list of deployments forms the boot menu.
package model
