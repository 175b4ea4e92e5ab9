package aps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/domain"
	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/port"
)

type webhookBody struct {
	VendorJobID  string          `json:"vendorJobId"`
	Status       string          `json:"status"`
	Progress     json.RawMessage `json:"progress"`
	Derivatives  json.RawMessage `json:"derivatives"`
	ErrorCode    string          `json:"errorCode"`
	ErrorMessage string          `json:"errorMessage"`
	Timestamp    string          `json:"timestamp"`
}

// EventDecoder turns extraction webhook bodies into domain events.
type EventDecoder struct{}

func (EventDecoder) DecodeEvent(body []byte) (domain.VendorEvent, error) {
	var b webhookBody
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&b); err != nil {
		return domain.VendorEvent{}, fmt.Errorf("%w: decode webhook: %v", domain.ErrValidation, err)
	}
	if b.VendorJobID == "" {
		return domain.VendorEvent{}, &domain.ValidationError{Field: "vendorJobId", Reason: "missing"}
	}

	ev := domain.VendorEvent{ExternalJobID: b.VendorJobID}
	if b.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, b.Timestamp)
		if err != nil {
			return domain.VendorEvent{}, &domain.ValidationError{Field: "timestamp", Reason: err.Error()}
		}
		ev.OccurredAt = ts.UTC()
	}

	switch strings.ToLower(b.Status) {
	case "pending":
		ev.Report = domain.Progressing{Percent: 0}
	case "inprogress":
		ev.Report = domain.Progressing{Percent: progressValue(b.Progress)}
	case "success":
		ev.Report = domain.Completed{Manifest: manifestFromDerivatives(b.Derivatives)}
	case "failed":
		code := b.ErrorCode
		if code == "" {
			code = domain.CodeTranslationFailed
		}
		ev.Report = domain.Rejected{Code: code, Message: b.ErrorMessage}
	case "timeout":
		ev.Report = domain.Rejected{Code: domain.CodeVendorTimeout, Message: "translation timed out at the vendor"}
	default:
		return domain.VendorEvent{}, &domain.ValidationError{Field: "status", Reason: strconv.Quote(b.Status) + " is not a known status"}
	}
	return ev, nil
}

// progressValue accepts a number or a "NN% complete" string.
func progressValue(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return max(0, min(int(n), 100))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseProgress(s)
	}
	return 0
}

func manifestFromDerivatives(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	m, err := json.Marshal(map[string]any{"status": "success", "progress": "complete", "derivatives": raw})
	if err != nil {
		return nil
	}
	return m
}

var _ port.EventDecoder = EventDecoder{}
