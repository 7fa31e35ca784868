// Package sysroot deploys commits of a repository as bootable trees.
//
// A sysroot holds a repository under ostree/repo, the checked out trees of each operating system under
// ostree/deploy/OSNAME/deploy, and the boot menu: the ordered list of deployments, which is replaced
// atomically by WriteDeployments.
//
// Deployments of the same operating system share their state directory, ostree/deploy/OSNAME/var.
// Local changes to /etc are carried over to new deployments by comparing the /etc of the previous
// deployment with the defaults shipped in its /usr/etc.
package sysroot
