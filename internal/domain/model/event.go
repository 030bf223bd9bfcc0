package model

type NotificationKind string

const (
	NotificationPaymentSuccess      NotificationKind = "payment_success"
	NotificationPaymentFailed       NotificationKind = "payment_failed"
	NotificationPaymentReversed     NotificationKind = "payment_reversed"
	NotificationSubscriptionExpired NotificationKind = "subscription_expired"
)

// OutboundEvent is a notification side effect produced by a state transition.
// Transitions only append events; a separate dispatcher delivers them, so a
// failed delivery can never roll back or block the transition itself.
type OutboundEvent struct {
	Kind      NotificationKind
	Recipient string // user id; the notification collaborator resolves the address
	Data      map[string]string
}
