// Package store persists rooms, shapes, and chat messages for Sketchroom.
//
// The Store interface is deliberately narrow: keyed create/read/update/delete
// calls that the real-time engine issues from connection goroutines. GormStore
// implements it on top of GORM with the sqlite driver. Callers rely only on the
// sentinel errors declared here (ErrNotFound, ErrConflict) and never on driver
// error types.
package store
