package capabilities

import "testing"

func TestParse(t *testing.T) {
	caps, err := Parse([]string{"CAP_CHOWN", "CAP_NET_RAW", "CAP_KILL"})
	if err != nil {
		t.Fatal(err)
	}
	if len(caps) != 3 {
		t.Fatalf("parsed %d capabilities, want 3", len(caps))
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	if _, err := Parse([]string{"cap_chown"}); err != nil {
		t.Fatal(err)
	}
}

func TestParseUnknown(t *testing.T) {
	if _, err := Parse([]string{"CAP_TIME_TRAVEL"}); err == nil {
		t.Fatal("unknown capability accepted")
	}
}

func TestParseEmpty(t *testing.T) {
	caps, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(caps) != 0 {
		t.Fatalf("empty input parsed to %v", caps)
	}
}
