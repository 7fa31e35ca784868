// Package mtree builds directory trees in memory before writing them to a content store.
//
// A MutableTree holds, for each directory, the checksums of its files and dirmeta and its
// subdirectories. Flushing a tree writes dirtrees bottom-up and returns the checksums of the
// root dirtree and dirmeta. Unchanged subtrees keep their cached checksum and are not rewritten.
package mtree
