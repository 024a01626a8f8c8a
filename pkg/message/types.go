// Package message defines the wire contract between the messaging transport
// and the conversation router.
package message

// Delivery classifies how the bridge delivered an inbound message.
type Delivery string

// Supported delivery kinds.
const (
	// DeliveryNotify is a freshly received message — the only kind the
	// router acts on.
	DeliveryNotify Delivery = "notify"
	// DeliveryHistory is a message replayed from the device history sync.
	DeliveryHistory Delivery = "history"
	// DeliveryStatus is a status/broadcast update.
	DeliveryStatus Delivery = "status"
)
