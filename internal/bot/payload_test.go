package bot

import (
	"testing"

	"github.com/pimedia/leadbot/internal/models"
)

func TestPayloadRoundTrip(t *testing.T) {
	cases := []Payload{
		{Kind: PayloadNoop},
		{Kind: PayloadLeadDetail, LeadID: "abc-123"},
		{Kind: PayloadLeadPage, Page: 2, Filter: FilterAll},
		{Kind: PayloadLeadPage, Page: 0, Filter: "NEW"},
		{Kind: PayloadFilterSwitch, Filter: "WON"},
		{Kind: PayloadFilterSwitch, Filter: FilterAll},
		{Kind: PayloadSetStatus, Status: models.StatusWon, LeadID: "lead-9"},
		{Kind: PayloadNotifyToggle, NotifyOn: true},
		{Kind: PayloadNotifyToggle, NotifyOn: false},
	}

	for _, want := range cases {
		encoded := want.Encode()
		got, err := DecodePayload(encoded)
		if err != nil {
			t.Fatalf("DecodePayload(%q): %v", encoded, err)
		}
		if got != want {
			t.Errorf("round trip %q: got %+v, want %+v", encoded, got, want)
		}
	}
}

func TestPayloadEncoding(t *testing.T) {
	p := Payload{Kind: PayloadLeadPage, Page: 2, Filter: FilterAll}
	if got := p.Encode(); got != "lp_2_ALL" {
		t.Errorf("expected lp_2_ALL, got %q", got)
	}
	p = Payload{Kind: PayloadSetStatus, Status: models.StatusWon, LeadID: "x1"}
	if got := p.Encode(); got != "st_WON_x1" {
		t.Errorf("expected st_WON_x1, got %q", got)
	}
}

func TestDecodeMalformedPayloads(t *testing.T) {
	bad := []string{
		"",
		"garbage",
		"lead_",
		"lp_",
		"lp_x_ALL",
		"lp_-1_ALL",
		"lp_2_BOGUS",
		"lf_",
		"lf_MAYBE",
		"st_WON_",
		"st_BOGUS_id",
		"st_WON",
		"notify_maybe",
	}
	for _, data := range bad {
		if _, err := DecodePayload(data); err == nil {
			t.Errorf("DecodePayload(%q): expected error, got none", data)
		}
	}
}
