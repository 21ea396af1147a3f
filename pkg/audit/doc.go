// Package audit persists a record of every effective decision change so
// operators can reconstruct why a service's observability posture moved.
package audit
