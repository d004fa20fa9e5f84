package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminates notification events on the wire ("type" field).
type EventType string

const (
	EventOrderBookUpdate         EventType = "order_book_update"
	EventOrderUpdate             EventType = "order_update"
	EventMatchNotification       EventType = "match_notification"
	EventEpochTransition         EventType = "epoch_transition"
	EventTransactionStatusUpdate EventType = "transaction_status_update"
	EventP2POrderUpdate          EventType = "p2p_order_update"
	EventSettlementComplete      EventType = "settlement_complete"
	EventError                   EventType = "error"
	EventPing                    EventType = "ping"
	EventPong                    EventType = "pong"
)

// Event is a JSON-serializable notification delivered to connected
// clients. Events are immutable once constructed; amounts are carried
// as decimal strings for precision-safe client display.
type Event interface {
	EventType() EventType
}

// OrderBookEntry is one aggregated price level of the order book.
type OrderBookEntry struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	OrderCount int    `json:"order_count"`
}

// OrderBookUpdateEvent carries a full order-book snapshot for an epoch.
type OrderBookUpdateEvent struct {
	Type        EventType        `json:"type"`
	EpochNumber int32            `json:"epoch_number"`
	Buys        []OrderBookEntry `json:"buys"`
	Sells       []OrderBookEntry `json:"sells"`
	Timestamp   time.Time        `json:"timestamp"`
}

func (e OrderBookUpdateEvent) EventType() EventType { return e.Type }

// NewOrderBookUpdate constructs an order-book snapshot event.
func NewOrderBookUpdate(epoch int32, buys, sells []OrderBookEntry) OrderBookUpdateEvent {
	return OrderBookUpdateEvent{
		Type:        EventOrderBookUpdate,
		EpochNumber: epoch,
		Buys:        buys,
		Sells:       sells,
		Timestamp:   time.Now().UTC(),
	}
}

// OrderUpdateEvent reports a status change of a single order.
type OrderUpdateEvent struct {
	Type      EventType `json:"type"`
	OrderID   uuid.UUID `json:"order_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

func (e OrderUpdateEvent) EventType() EventType { return e.Type }

// NewOrderUpdate constructs an order status event.
func NewOrderUpdate(orderID uuid.UUID, status string) OrderUpdateEvent {
	return OrderUpdateEvent{
		Type:      EventOrderUpdate,
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// MatchNotificationEvent announces that two orders were matched.
type MatchNotificationEvent struct {
	Type          EventType `json:"type"`
	MatchID       uuid.UUID `json:"match_id"`
	BuyOrderID    uuid.UUID `json:"buy_order_id"`
	SellOrderID   uuid.UUID `json:"sell_order_id"`
	MatchedAmount string    `json:"matched_amount"`
	MatchPrice    string    `json:"match_price"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e MatchNotificationEvent) EventType() EventType { return e.Type }

// NewMatchNotification constructs a match event.
func NewMatchNotification(matchID, buyOrderID, sellOrderID uuid.UUID, amount, price string) MatchNotificationEvent {
	return MatchNotificationEvent{
		Type:          EventMatchNotification,
		MatchID:       matchID,
		BuyOrderID:    buyOrderID,
		SellOrderID:   sellOrderID,
		MatchedAmount: amount,
		MatchPrice:    price,
		Timestamp:     time.Now().UTC(),
	}
}

// EpochTransitionEvent marks the close of one market epoch and the
// opening of the next.
type EpochTransitionEvent struct {
	Type          EventType `json:"type"`
	OldEpoch      int32     `json:"old_epoch"`
	NewEpoch      int32     `json:"new_epoch"`
	ClearingPrice *string   `json:"clearing_price,omitempty"`
	TotalVolume   string    `json:"total_volume"`
	Timestamp     time.Time `json:"timestamp"`
}

func (e EpochTransitionEvent) EventType() EventType { return e.Type }

// NewEpochTransition constructs an epoch transition event.
func NewEpochTransition(oldEpoch, newEpoch int32, clearingPrice *string, totalVolume string) EpochTransitionEvent {
	return EpochTransitionEvent{
		Type:          EventEpochTransition,
		OldEpoch:      oldEpoch,
		NewEpoch:      newEpoch,
		ClearingPrice: clearingPrice,
		TotalVolume:   totalVolume,
		Timestamp:     time.Now().UTC(),
	}
}

// TransactionStatusUpdateEvent reports a state change of a user's
// on-chain operation.
type TransactionStatusUpdateEvent struct {
	Type            EventType `json:"type"`
	OperationID     uuid.UUID `json:"operation_id"`
	TransactionType string    `json:"transaction_type"`
	OldStatus       string    `json:"old_status"`
	NewStatus       string    `json:"new_status"`
	Signature       *string   `json:"signature,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e TransactionStatusUpdateEvent) EventType() EventType { return e.Type }

// NewTransactionStatusUpdate constructs a transaction status event.
func NewTransactionStatusUpdate(operationID uuid.UUID, txType, oldStatus, newStatus string, signature, errMsg *string) TransactionStatusUpdateEvent {
	return TransactionStatusUpdateEvent{
		Type:            EventTransactionStatusUpdate,
		OperationID:     operationID,
		TransactionType: txType,
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
		Signature:       signature,
		ErrorMessage:    errMsg,
		Timestamp:       time.Now().UTC(),
	}
}

// P2POrderUpdateEvent reports the lifecycle of a peer-to-peer order.
type P2POrderUpdateEvent struct {
	Type            EventType `json:"type"`
	OrderID         uuid.UUID `json:"order_id"`
	UserID          uuid.UUID `json:"user_id"`
	Side            string    `json:"side"`
	Status          string    `json:"status"`
	OriginalAmount  string    `json:"original_amount"`
	FilledAmount    string    `json:"filled_amount"`
	RemainingAmount string    `json:"remaining_amount"`
	PricePerKwh     string    `json:"price_per_kwh"`
	Timestamp       time.Time `json:"timestamp"`
}

func (e P2POrderUpdateEvent) EventType() EventType { return e.Type }

// SettlementCompleteEvent notifies buyer and seller that a settlement
// finished on-chain.
type SettlementCompleteEvent struct {
	Type                 EventType `json:"type"`
	SettlementID         uuid.UUID `json:"settlement_id"`
	BuyerID              uuid.UUID `json:"buyer_id"`
	SellerID             uuid.UUID `json:"seller_id"`
	EnergyAmount         string    `json:"energy_amount"`
	TransactionSignature *string   `json:"transaction_signature,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

func (e SettlementCompleteEvent) EventType() EventType { return e.Type }

// NewSettlementComplete constructs a settlement completion event from
// the terminal settlement record.
func NewSettlementComplete(s *Settlement) SettlementCompleteEvent {
	return SettlementCompleteEvent{
		Type:                 EventSettlementComplete,
		SettlementID:         s.ID,
		BuyerID:              s.BuyerID,
		SellerID:             s.SellerID,
		EnergyAmount:         s.EnergyAmount.String(),
		TransactionSignature: s.TransactionHash,
		Timestamp:            time.Now().UTC(),
	}
}

// ErrorEvent carries a protocol-level error to a client.
type ErrorEvent struct {
	Type      EventType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (e ErrorEvent) EventType() EventType { return e.Type }

// NewErrorEvent constructs a client-facing error event.
func NewErrorEvent(code, message string) ErrorEvent {
	return ErrorEvent{
		Type:      EventError,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// PingEvent is a connection-health check.
type PingEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e PingEvent) EventType() EventType { return e.Type }

// NewPing constructs a ping event.
func NewPing() PingEvent {
	return PingEvent{Type: EventPing, Timestamp: time.Now().UTC()}
}

// PongEvent answers a PingEvent.
type PongEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

func (e PongEvent) EventType() EventType { return e.Type }

// NewPong constructs a pong event.
func NewPong() PongEvent {
	return PongEvent{Type: EventPong, Timestamp: time.Now().UTC()}
}
