// Package targettest provides an in-process inventory store that behaves
// like the demo target the engine is built to explore, including its
// oversell bug on the expedite path.
package targettest

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Modes accepted by POST /mode.
var validModes = map[string]bool{"normal": true, "maintenance": true, "slow": true}

var errMaintenance = fmt.Errorf("store in maintenance mode")
var errInsufficient = fmt.Errorf("not enough inventory")

type event struct {
	Name         string         `json:"name"`
	Detail       map[string]any `json:"detail"`
	StateVersion int            `json:"state_version"`
	Timestamp    float64        `json:"timestamp"`
}

type order struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Expedite bool   `json:"expedite"`
	Status   string `json:"status"`
	OrderID  int    `json:"order_id"`
}

// Store is the mutable inventory state.
type Store struct {
	mu           sync.Mutex
	inventory    map[string]int
	mode         string
	orders       []order
	stateVersion int
	events       []event
	alerts       []string
}

// NewStore returns a store in its initial state.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset restores widgets=6, gadgets=3, doodads=2 in normal mode.
func (s *Store) Reset() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory = map[string]int{"widgets": 6, "gadgets": 3, "doodads": 2}
	s.mode = "normal"
	s.orders = nil
	s.stateVersion = 0
	s.events = nil
	s.alerts = nil
	s.recordEvent("reset", map[string]any{"reason": "api"})
	return s.summary()
}

// Summary returns the state snapshot served by GET /state.
func (s *Store) Summary() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary()
}

// Mode returns the current mode.
func (s *Store) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Store) recordEvent(name string, detail map[string]any) {
	s.events = append(s.events, event{
		Name:         name,
		Detail:       detail,
		StateVersion: s.stateVersion,
		Timestamp:    float64(time.Now().UnixNano()) / 1e9,
	})
	if len(s.events) > 200 {
		s.events = s.events[1:]
	}
}

func (s *Store) summary() map[string]any {
	orders := s.orders
	if len(orders) > 5 {
		orders = orders[len(orders)-5:]
	}
	events := s.events
	if len(events) > 10 {
		events = events[len(events)-10:]
	}
	return map[string]any{
		"inventory":     maps.Clone(s.inventory),
		"mode":          s.mode,
		"orders":        append([]order{}, orders...),
		"orders_total":  len(s.orders),
		"state_version": s.stateVersion,
		"alerts":        append([]string{}, s.alerts...),
		"invariants":    s.invariantFlags(),
		"recent_events": append([]event{}, events...),
	}
}

func (s *Store) invariantFlags() []string {
	flags := []string{}
	for _, item := range slices.Sorted(maps.Keys(s.inventory)) {
		if s.inventory[item] < 0 {
			flags = append(flags, "inventory_negative:"+item)
		}
	}
	if s.mode == "maintenance" && len(s.orders) > 0 {
		flags = append(flags, "orders_in_maintenance")
	}
	if s.mode == "slow" {
		flags = append(flags, "slow_mode")
	}
	return flags
}

// AddInventory adds quantity (possibly negative) to item.
func (s *Store) AddInventory(item string, quantity int) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inventory[item] += quantity
	s.stateVersion++
	s.recordEvent("restock", map[string]any{"item": item, "quantity": quantity})
	return s.summary()
}

// SetMode switches the store mode.
func (s *Store) SetMode(mode string) (map[string]any, error) {
	if !validModes[mode] {
		return nil, fmt.Errorf("invalid mode %q", mode)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.stateVersion++
	s.recordEvent("mode_change", map[string]any{"mode": mode})
	return s.summary(), nil
}

// Purchase places an order. The expedite path debits inventory without
// checking availability.
func (s *Store) Purchase(item string, quantity int, expedite bool) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	available := s.inventory[item]
	if s.mode == "maintenance" {
		s.recordEvent("purchase_rejected", map[string]any{"item": item, "reason": "maintenance"})
		return nil, errMaintenance
	}

	status := "accepted"
	if expedite {
		status = "accepted_expedited_without_validation"
	} else if available < quantity {
		s.recordEvent("purchase_conflict", map[string]any{"item": item, "requested": quantity, "available": available})
		return nil, errInsufficient
	}
	s.inventory[item] = available - quantity

	o := order{
		Item:     item,
		Quantity: quantity,
		Expedite: expedite,
		Status:   status,
		OrderID:  len(s.orders) + 1,
	}
	s.orders = append(s.orders, o)
	s.stateVersion++
	if s.inventory[item] < 0 {
		s.alerts = append(s.alerts, "oversold:"+item)
	}
	s.recordEvent("purchase", map[string]any{
		"item": o.Item, "quantity": o.Quantity, "expedite": o.Expedite,
		"status": o.Status, "order_id": o.OrderID,
	})
	return s.summary(), nil
}
