package version

import (
	"strings"
	"testing"
)

func TestCheckProtocolCompatibility_MatchingMajor(t *testing.T) {
	if err := CheckProtocolCompatibility("1.0"); err != nil {
		t.Errorf("expected a matching major version to be compatible, got %v", err)
	}
}

func TestCheckProtocolCompatibility_MismatchedMajor(t *testing.T) {
	if err := CheckProtocolCompatibility("2.0"); err == nil {
		t.Error("expected a differing major version to be reported incompatible")
	}
}

func TestCheckProtocolCompatibility_EmptyIsAnError(t *testing.T) {
	if err := CheckProtocolCompatibility(""); err == nil {
		t.Error("expected an empty protocol_version to be an error")
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		v1, v2 string
		want   int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.1.0", -1},
		{"1.2.0", "1.1.0", 1},
		{"2.0.0", "1.9.9", 1},
		{"1.0.0-beta", "1.0.0", 0},
	}
	for _, c := range cases {
		if got := compareVersions(c.v1, c.v2); got != c.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", c.v1, c.v2, got, c.want)
		}
	}
}

func TestUpdateInfo_UpdateMessageEmptyWhenNoUpdateOrError(t *testing.T) {
	noUpdate := &UpdateInfo{UpdateAvailable: false}
	if msg := noUpdate.UpdateMessage(); msg != "" {
		t.Errorf("expected empty message when no update available, got %q", msg)
	}
	withError := &UpdateInfo{UpdateAvailable: true, Error: "network unreachable"}
	if msg := withError.UpdateMessage(); msg != "" {
		t.Errorf("expected empty message when Error is set, got %q", msg)
	}
}

func TestUpdateInfo_UpdateMessageNamesBothVersions(t *testing.T) {
	info := &UpdateInfo{UpdateAvailable: true, CurrentVersion: "0.1.0", LatestVersion: "0.2.0"}
	msg := info.UpdateMessage()
	if msg == "" {
		t.Fatal("expected a non-empty update message")
	}
	if !strings.Contains(msg, "0.1.0") || !strings.Contains(msg, "0.2.0") {
		t.Errorf("expected both versions named in %q", msg)
	}
}
