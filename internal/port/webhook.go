package port

import "github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"

// EventDecoder parses a vendor webhook body. It is only called on bodies
// whose signature has been verified.
type EventDecoder interface {
	DecodeEvent(body []byte) (domain.VendorEvent, error)
}
