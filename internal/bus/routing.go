package bus

import "strings"

// InboundKey is the generic routing key for user messages from a transport.
func InboundKey(transportName string) string {
	return transportName + ".inbound"
}

// OutboundKey is the generic routing key a transport consumes replies from.
func OutboundKey(transportName string) string {
	return transportName + ".outbound"
}

// EventKey is the generic routing key for acks, nacks and delivery reports.
func EventKey(transportName string) string {
	return transportName + ".event"
}

// SMSInboundKey routes an inbound SMS by vendor and destination short code.
func SMSInboundKey(vendor, destination string) string {
	return join("sms", "inbound", vendor, destination)
}

// SMSReceiptKey routes delivery receipts for vendor.
func SMSReceiptKey(vendor string) string {
	return join("sms", "receipt", vendor)
}

// SMSAckKey routes outbound send acknowledgements for vendor.
func SMSAckKey(vendor string) string {
	return join("sms", "ack", vendor)
}

// SMSOutboundKey is where outbound SMS for vendor are consumed from.
func SMSOutboundKey(vendor string) string {
	return join("sms", "outbound", vendor)
}

func join(parts ...string) string {
	return strings.Join(parts, ".")
}
