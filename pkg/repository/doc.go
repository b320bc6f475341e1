// Package repository models the places artifacts live: remote repositories
// with their release and snapshot policies, the local repository on disk and
// the Maven 2 layout that maps coordinates to paths in both.
//
// The [Manager] is the entry point used by the rest of the engine. It hands
// out a [transfer.Connector] for a remote repository (looked up by URL
// scheme), computes the effective [Policy] for a request and aggregates the
// repository lists met while walking a dependency graph, applying configured
// mirrors to repositories that come from descriptors.
package repository
