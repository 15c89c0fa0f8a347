// Package dockermanage provides lightweight Docker container lifecycle helpers.
//
// A [Manager] wraps the native Docker client and exposes methods to start, inspect, stop, remove,
// and list containers, and to read their logs. Containers are configured through functional
// [Option] values such as [WithImage], [WithContainerPortTCP], [WithHostPort], and [WithEnv].
//
// Every container created through this package is tagged with the [ManagedLabelKey] label, which
// allows bulk operations like [Manager.RemoveManaged] to clean up all managed containers, including
// ones deliberately left behind for post-mortem inspection.
package dockermanage
