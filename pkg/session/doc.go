// Package session serializes access to sessions. The engine is single
// writer per session: exactly one in-flight mutation is permitted per
// session ID, enforced locally with ref-counted mutexes and optionally
// across replicas with a distributed locker.
package session
