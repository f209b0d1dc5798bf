// Package workflow models the structural workflow definition, the
// non-structural tuning configuration, and the builder that merges them
// into the frozen effective snapshot bound to a session at creation time.
package workflow
