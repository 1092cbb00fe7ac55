package messaging

// Subjects follow {domain}.{resource}.{action}[.{kind}].
const (
	// SubjectDeliveriesCompleted is published once per relayed request, whatever the outcome.
	SubjectDeliveriesCompleted = "relay.deliveries.completed"

	// SubjectDeliveriesAll matches completion events of every kind.
	SubjectDeliveriesAll = SubjectDeliveriesCompleted + ".>"
)

// DeliverySubject returns the completion subject for one content kind.
// Example: relay.deliveries.completed.pdf
func DeliverySubject(kind string) string {
	if kind == "" {
		return SubjectDeliveriesCompleted
	}
	return SubjectDeliveriesCompleted + "." + kind
}
