// Package artifact defines the identity types depot resolves and transfers.
//
// An [Artifact] is a versioned binary unit addressed by Maven-style
// coordinates (group, artifact, version, classifier, extension). A
// [Dependency] pairs an artifact with a scope, an optional flag and a set of
// [Exclusion] patterns. [Metadata] describes repository metadata files such as
// maven-metadata.xml.
//
// All three are value types. Setters return modified copies and clone any
// map or slice they carry, so a graph edge that rewrites its dependency never
// changes a value stored elsewhere.
//
// # Coordinates
//
// [Parse] accepts the usual forms:
//
//	group:artifact:version
//	group:artifact:extension:version
//	group:artifact:extension:classifier:version
//
// [Artifact.Key] drops the version and is the conflict-group identity used by
// the resolver.
//
// # Scopes
//
// Scope dominance is policy. [ScopeTable] holds a configurable ordering plus
// the derivation rules that compute a transitive dependency's scope from its
// parent's.
package artifact
