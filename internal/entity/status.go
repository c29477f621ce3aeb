package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending            Status = "Pending"
	StatusAccepted           Status = "Accepted"
	StatusMaking             Status = "Making"
	StatusCompletedByBarista Status = "CompletedByBarista"
	StatusDone               Status = "Done"
	StatusCancelled          Status = "Cancelled"
	StatusRefunded           Status = "Refunded"
)

var allStatuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusMaking,
	StatusCompletedByBarista,
	StatusDone,
	StatusCancelled,
	StatusRefunded,
}

// ParseStatus normalizes a status label read from the database or a request.
// Matching is case-insensitive and "new" is accepted for Pending.
func ParseStatus(s string) (Status, error) {
	label := strings.TrimSpace(s)
	if strings.EqualFold(label, "new") {
		return StatusPending, nil
	}
	for _, st := range allStatuses {
		if strings.EqualFold(label, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// IsTerminal reports whether line items of an order in this status are frozen.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusCancelled || s == StatusRefunded
}

// Role is the staff role acting on an order.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCashier  Role = "cashier"
	RoleBarista  Role = "barista"
	RoleAdmin    Role = "admin"
	// RoleSystem is used by background consumers acting on behalf of the payment flow.
	RoleSystem Role = "system"
)

// Actor identifies who requests a change. StoreID 0 means any store.
type Actor struct {
	ID      string
	Role    Role
	StoreID int64
}

// SystemActor is the actor used by in-process consumers.
var SystemActor = Actor{ID: "system", Role: RoleSystem}

// CanAccess reports whether the actor may touch orders of the given store.
func (a Actor) CanAccess(storeID int64) bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem || a.StoreID == 0 || a.StoreID == storeID
}

var (
	prePaymentStaff = []Role{RoleCashier, RoleAdmin}

	transitions = map[Status]map[Status][]Role{
		StatusPending: {
			StatusAccepted:  prePaymentStaff,
			StatusCancelled: prePaymentStaff,
		},
		StatusAccepted: {
			StatusMaking:    prePaymentStaff,
			StatusCancelled: prePaymentStaff,
		},
		StatusMaking: {
			StatusCompletedByBarista: {RoleBarista, RoleAdmin},
			StatusCancelled:          prePaymentStaff,
		},
		StatusCompletedByBarista: {
			StatusDone:      {RoleCashier, RoleAdmin, RoleSystem},
			StatusCancelled: prePaymentStaff,
		},
		StatusDone: {
			StatusRefunded: {RoleAdmin},
		},
	}
)

// CanTransition reports whether to is an allowed next status of from.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// AllowedNext lists the statuses reachable from s in one step.
func AllowedNext(s Status) []Status {
	next := make([]Status, 0, len(transitions[s]))
	for st := range transitions[s] {
		next = append(next, st)
	}
	sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	return next
}

// MayTransition reports whether role may move an order from one status to another.
func MayTransition(role Role, from, to Status) bool {
	for _, r := range transitions[from][to] {
		if r == role {
			return true
		}
	}
	return false
}
