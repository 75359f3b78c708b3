package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pimedia/leadbot/internal/models"
)

// Callback payloads ride in the button's callback data (64 bytes max),
// so the encoding stays a compact prefixed string. Decode is
// exhaustive: anything outside the grammar is ErrBadPayload, never a
// silent no-op.

type PayloadKind int

const (
	PayloadNoop PayloadKind = iota
	PayloadLeadDetail
	PayloadLeadPage
	PayloadFilterSwitch
	PayloadSetStatus
	PayloadNotifyToggle
)

// FilterAll is the status filter matching every lead.
const FilterAll = "ALL"

var ErrBadPayload = fmt.Errorf("malformed callback payload")

// Payload is the decoded form of a button click.
type Payload struct {
	Kind     PayloadKind
	LeadID   string
	Page     int
	Filter   string // FilterAll or a LeadStatus value
	Status   models.LeadStatus
	NotifyOn bool
}

func validFilter(f string) bool {
	return f == FilterAll || models.ValidStatus(models.LeadStatus(f))
}

func (p Payload) Encode() string {
	switch p.Kind {
	case PayloadNoop:
		return "noop"
	case PayloadLeadDetail:
		return "lead_" + p.LeadID
	case PayloadLeadPage:
		return fmt.Sprintf("lp_%d_%s", p.Page, p.Filter)
	case PayloadFilterSwitch:
		return "lf_" + p.Filter
	case PayloadSetStatus:
		return fmt.Sprintf("st_%s_%s", p.Status, p.LeadID)
	case PayloadNotifyToggle:
		if p.NotifyOn {
			return "notify_on"
		}
		return "notify_off"
	}
	return "noop"
}

func DecodePayload(data string) (Payload, error) {
	switch {
	case data == "noop":
		return Payload{Kind: PayloadNoop}, nil

	case data == "notify_on", data == "notify_off":
		return Payload{Kind: PayloadNotifyToggle, NotifyOn: data == "notify_on"}, nil

	case strings.HasPrefix(data, "lead_"):
		id := strings.TrimPrefix(data, "lead_")
		if id == "" {
			return Payload{}, ErrBadPayload
		}
		return Payload{Kind: PayloadLeadDetail, LeadID: id}, nil

	case strings.HasPrefix(data, "lp_"):
		parts := strings.SplitN(strings.TrimPrefix(data, "lp_"), "_", 2)
		if len(parts) != 2 || !validFilter(parts[1]) {
			return Payload{}, ErrBadPayload
		}
		page, err := strconv.Atoi(parts[0])
		if err != nil || page < 0 {
			return Payload{}, ErrBadPayload
		}
		return Payload{Kind: PayloadLeadPage, Page: page, Filter: parts[1]}, nil

	case strings.HasPrefix(data, "lf_"):
		filter := strings.TrimPrefix(data, "lf_")
		if !validFilter(filter) {
			return Payload{}, ErrBadPayload
		}
		return Payload{Kind: PayloadFilterSwitch, Filter: filter}, nil

	case strings.HasPrefix(data, "st_"):
		parts := strings.SplitN(strings.TrimPrefix(data, "st_"), "_", 2)
		if len(parts) != 2 || parts[1] == "" {
			return Payload{}, ErrBadPayload
		}
		status := models.LeadStatus(parts[0])
		if !models.ValidStatus(status) {
			return Payload{}, ErrBadPayload
		}
		return Payload{Kind: PayloadSetStatus, Status: status, LeadID: parts[1]}, nil
	}
	return Payload{}, ErrBadPayload
}
