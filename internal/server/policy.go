// Package server orders persistence and broadcast per operation.
package server

import (
	"context"
	"log"
)

// PersistPolicy decides whether an operation's store write happens before or
// after its broadcast.
type PersistPolicy int

const (
	// DurableConfirmed persists first. A failed write is reported to the
	// issuer and nothing is delivered.
	DurableConfirmed PersistPolicy = iota
	// OptimisticFireAndForget delivers first and persists in the background.
	// A failed write is only logged.
	OptimisticFireAndForget
)

func (p PersistPolicy) String() string {
	switch p {
	case DurableConfirmed:
		return "durable-confirmed"
	case OptimisticFireAndForget:
		return "optimistic-fire-and-forget"
	default:
		return "unknown"
	}
}

// effect is the outcome of a validated frame. Either half may be nil.
type effect struct {
	commit  func(ctx context.Context) *ProtocolError
	deliver func()
}

func (e *Engine) apply(ctx context.Context, c *Client, frameType string, policy PersistPolicy, eff effect) *ProtocolError {
	switch policy {
	case OptimisticFireAndForget:
		if eff.deliver != nil {
			eff.deliver()
		}
		if eff.commit == nil {
			return nil
		}
		bg := context.WithoutCancel(ctx)
		e.background.Add(1)
		go func() {
			defer e.background.Done()
			if perr := eff.commit(bg); perr != nil {
				log.Printf("Background %s persistence failed for user %s from %s: %v", frameType, c.userID, c.addr, perr)
			}
		}()
		return nil

	default:
		if eff.commit != nil {
			if perr := eff.commit(ctx); perr != nil {
				return perr
			}
		}
		if eff.deliver != nil {
			eff.deliver()
		}
		return nil
	}
}
