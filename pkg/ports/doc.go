// Package ports defines the interfaces between the engine core and its
// collaborators: file storage, session persistence, the job subsystem, the
// operation registry and distributed locking. The engine consumes these
// capabilities; adapters implement them.
package ports
