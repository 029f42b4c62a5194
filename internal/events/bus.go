package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventCycleCompleted   EventType = "CYCLE_COMPLETED"
	EventDirectiveUpdate  EventType = "DIRECTIVE_UPDATE"
	EventConsensusUpdate  EventType = "CONSENSUS_UPDATE"
	EventSweepExecuted    EventType = "SWEEP_EXECUTED"
	EventColonySplit      EventType = "COLONY_SPLIT"
	EventColonyFrozen     EventType = "COLONY_FROZEN"
	EventOrderPlaced      EventType = "ORDER_PLACED"
	EventOrderFilled      EventType = "ORDER_FILLED"
	EventConversionRouted EventType = "CONVERSION_ROUTED"
	EventEngineStarted    EventType = "ENGINE_STARTED"
	EventEngineStopped    EventType = "ENGINE_STOPPED"
	EventEnginePaused     EventType = "ENGINE_PAUSED"
	EventEngineResumed    EventType = "ENGINE_RESUMED"
	EventError            EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run in goroutines
// so a slow consumer never blocks the engine cycle.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishCycleCompleted publishes per-cycle summary numbers.
func (eb *EventBus) PublishCycleCompleted(cycle uint64, globalSignal, totalEquity float64, elapsed time.Duration) {
	eb.Publish(Event{
		Type: EventCycleCompleted,
		Data: map[string]interface{}{
			"cycle":         cycle,
			"global_signal": globalSignal,
			"total_equity":  totalEquity,
			"elapsed_ms":    elapsed.Milliseconds(),
		},
	})
}

// PublishDirectiveUpdate publishes the directive chosen for a cycle.
func (eb *EventBus) PublishDirectiveUpdate(mode string, allowEntries bool, budgetScale, confidenceFloor float64) {
	eb.Publish(Event{
		Type: EventDirectiveUpdate,
		Data: map[string]interface{}{
			"mode":             mode,
			"allow_entries":    allowEntries,
			"budget_scale":     budgetScale,
			"confidence_floor": confidenceFloor,
		},
	})
}

// PublishConsensusUpdate publishes one symbol's aggregated decision.
func (eb *EventBus) PublishConsensusUpdate(symbol, action string, strength, confidence float64, votes int) {
	eb.Publish(Event{
		Type: EventConsensusUpdate,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"action":     action,
			"strength":   strength,
			"confidence": confidence,
			"votes":      votes,
		},
	})
}

// PublishSweepExecuted publishes a completed profit sweep.
func (eb *EventBus) PublishSweepExecuted(instanceID int, symbol string, pnlValue, pnlPct float64) {
	eb.Publish(Event{
		Type: EventSweepExecuted,
		Data: map[string]interface{}{
			"instance_id": instanceID,
			"symbol":      symbol,
			"pnl_value":   pnlValue,
			"pnl_pct":     pnlPct,
		},
	})
}

// PublishColonySplit publishes a colony spawning a child.
func (eb *EventBus) PublishColonySplit(parentID, childID string, generation int, seedCapital float64) {
	eb.Publish(Event{
		Type: EventColonySplit,
		Data: map[string]interface{}{
			"parent_id":    parentID,
			"child_id":     childID,
			"generation":   generation,
			"seed_capital": seedCapital,
		},
	})
}

// PublishColonyFrozen publishes a colony halted on an invariant breach.
func (eb *EventBus) PublishColonyFrozen(colonyID, reason string) {
	eb.Publish(Event{
		Type: EventColonyFrozen,
		Data: map[string]interface{}{
			"colony_id": colonyID,
			"reason":    reason,
		},
	})
}

// PublishOrderPlaced publishes an order handed to the executor.
func (eb *EventBus) PublishOrderPlaced(orderID, symbol, side, venue string, quantity float64) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"side":     side,
			"venue":    venue,
			"quantity": quantity,
		},
	})
}

// PublishOrderFilled publishes a confirmed fill.
func (eb *EventBus) PublishOrderFilled(orderID, symbol string, executedPrice, executedQty float64) {
	eb.Publish(Event{
		Type: EventOrderFilled,
		Data: map[string]interface{}{
			"order_id":       orderID,
			"symbol":         symbol,
			"executed_price": executedPrice,
			"executed_qty":   executedQty,
		},
	})
}

// PublishConversionRouted publishes a multi-hop conversion decision.
func (eb *EventBus) PublishConversionRouted(from, to string, hops int, estimatedOutput float64) {
	eb.Publish(Event{
		Type: EventConversionRouted,
		Data: map[string]interface{}{
			"from_asset":       from,
			"to_asset":         to,
			"hops":             hops,
			"estimated_output": estimatedOutput,
		},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
