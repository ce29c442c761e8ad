package protocol

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func mustParse(t *testing.T, s string) *TextMessage {
	t.Helper()
	m, err := ParseText([]byte(s))
	if err != nil {
		t.Fatalf("ParseText(%s) error = %v", s, err)
	}
	return m
}

func TestParseText_Invalid(t *testing.T) {
	for _, in := range []string{"", "not json", "[1,2]"} {
		if _, err := ParseText([]byte(in)); err == nil {
			t.Errorf("ParseText(%q) should fail", in)
		}
	}
}

func TestTextMessage_HasPath(t *testing.T) {
	m := mustParse(t, `{"playlist":{"id":"_defaultplaylist_","position":3},"ack":1}`)

	tests := []struct {
		path []string
		want bool
	}{
		{[]string{"ack"}, true},
		{[]string{"playlist"}, true},
		{[]string{"playlist", "position"}, true},
		{[]string{"playlist", "items"}, false},
		{[]string{"ack", "nested"}, false},
		{[]string{"missing", "position"}, false},
		{nil, false},
	}

	for _, tt := range tests {
		if got := m.HasPath(tt.path...); got != tt.want {
			t.Errorf("HasPath(%v) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParseSequencerState_PreservesControlOrder(t *testing.T) {
	m := mustParse(t, `{
		"activeProgram": {
			"name": "rainbow melt",
			"activeProgramId": "zzAbc",
			"controls": {"sliderSpeed": 0.25, "hsvPickerColor": 0.5, "sliderAlpha": 1}
		},
		"sequencerMode": 2,
		"runSequencer": true,
		"playlist": {"position": 4, "id": "_defaultplaylist_", "ms": 30000, "remainingMs": 1200}
	}`)

	s, err := ParseSequencerState(m)
	if err != nil {
		t.Fatalf("ParseSequencerState() error = %v", err)
	}

	if s.ActiveProgram.ActiveProgramID != "zzAbc" {
		t.Errorf("ActiveProgramID = %q, want zzAbc", s.ActiveProgram.ActiveProgramID)
	}
	if s.SequencerMode != SequencerPlaylist {
		t.Errorf("SequencerMode = %v, want playlist", s.SequencerMode)
	}
	if !s.RunSequencer {
		t.Error("RunSequencer should be true")
	}
	if s.Playlist.Position != 4 || s.Playlist.RemainingMs != 1200 {
		t.Errorf("Playlist = %+v", s.Playlist)
	}

	wantNames := []string{"sliderSpeed", "hsvPickerColor", "sliderAlpha"}
	if len(s.ActiveProgram.Controls) != len(wantNames) {
		t.Fatalf("got %d controls, want %d", len(s.ActiveProgram.Controls), len(wantNames))
	}
	for i, name := range wantNames {
		if s.ActiveProgram.Controls[i].Name != name {
			t.Errorf("control %d = %q, want %q", i, s.ActiveProgram.Controls[i].Name, name)
		}
	}
	if s.ActiveProgram.Controls[2].Value != 1 {
		t.Errorf("sliderAlpha = %v, want 1", s.ActiveProgram.Controls[2].Value)
	}
}

func TestParseSettings(t *testing.T) {
	m := mustParse(t, `{"name":"Desk","pixelCount":144,"brightness":0.6,"maxBrightness":80,
		"ledType":2,"ver":"3.40","discoveryEnable":true,"cpuSpeed":240}`)

	s, err := ParseSettings(m)
	if err != nil {
		t.Fatalf("ParseSettings() error = %v", err)
	}
	if s.Name != "Desk" || s.PixelCount != 144 || s.MaxBrightness != 80 {
		t.Errorf("Settings = %+v", s)
	}
	if s.LedType != LedWS2812 {
		t.Errorf("LedType = %v, want WS2812", s.LedType)
	}
	if !s.DiscoveryEnabled {
		t.Error("DiscoveryEnabled should be true")
	}
	if s.Version != "3.40" {
		t.Errorf("Version = %q, want 3.40", s.Version)
	}
}

func TestParsePlaylist(t *testing.T) {
	m := mustParse(t, `{"playlist":{"id":"_defaultplaylist_","position":1,"ms":5000,"remainingMs":2000,
		"items":[{"id":"a1","ms":5000},{"id":"b2","ms":7000}]}}`)

	p, err := ParsePlaylist(m)
	if err != nil {
		t.Fatalf("ParsePlaylist() error = %v", err)
	}
	if p.Position != 1 || len(p.Items) != 2 {
		t.Fatalf("Playlist = %+v", p)
	}
	if p.Items[1].ID != "b2" || p.Items[1].DurationMs != 7000 {
		t.Errorf("item 1 = %+v", p.Items[1])
	}
}

func TestParsePeers(t *testing.T) {
	m := mustParse(t, `{"peers":[{"id":1,"ipAddress":"10.0.0.9","name":"porch","ver":"3.30","isFollowing":true,"nodeId":2,"followerCount":0}]}`)

	peers, err := ParsePeers(m)
	if err != nil {
		t.Fatalf("ParsePeers() error = %v", err)
	}
	if len(peers) != 1 || peers[0].Name != "porch" || !peers[0].IsFollowing {
		t.Errorf("peers = %+v", peers)
	}
}

func TestParsePatternControls(t *testing.T) {
	m := mustParse(t, `{"controls":{"pat1":{"sliderA":0.1,"sliderB":0.9}}}`)

	id, controls, err := ParsePatternControls(m)
	if err != nil {
		t.Fatalf("ParsePatternControls() error = %v", err)
	}
	if id != "pat1" {
		t.Errorf("id = %q, want pat1", id)
	}
	if len(controls) != 2 || controls[0].Name != "sliderA" {
		t.Errorf("controls = %+v", controls)
	}

	if _, _, err := ParsePatternControls(mustParse(t, `{"ack":1}`)); err == nil {
		t.Error("ParsePatternControls() without controls should fail")
	}
}

func TestParseStats(t *testing.T) {
	m := mustParse(t, `{"fps":59.5,"vmerr":0,"mem":10240,"uptime":123456,"storageUsed":100,"storageSize":1000}`)

	s, err := ParseStats(m)
	if err != nil {
		t.Fatalf("ParseStats() error = %v", err)
	}
	if s.FPS != 59.5 || s.MemBytes != 10240 || s.UptimeMs != 123456 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestPatternIterator(t *testing.T) {
	it := NewPatternIterator(strings.NewReader("abc\tFoo\ndef\tBar\n"))

	var got []PatternIdentifiers
	for it.Next() {
		got = append(got, it.Pattern())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	want := []PatternIdentifiers{{ID: "abc", Name: "Foo"}, {ID: "def", Name: "Bar"}}
	if len(got) != len(want) {
		t.Fatalf("got %d patterns, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pattern %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestPatternIterator_MissingTrailingNewline(t *testing.T) {
	it := NewPatternIterator(strings.NewReader("abc\tFoo"))
	if !it.Next() {
		t.Fatalf("Next() = false, err = %v", it.Err())
	}
	if it.Pattern().Name != "Foo" {
		t.Errorf("Name = %q, want Foo", it.Pattern().Name)
	}
	if it.Next() {
		t.Error("Next() should be false at end of data")
	}
}

func TestPatternIterator_Malformed(t *testing.T) {
	it := NewPatternIterator(strings.NewReader("abc\tFoo\nbroken"))
	if !it.Next() {
		t.Fatal("first record should parse")
	}
	if it.Next() {
		t.Error("Next() should fail on a record with no tab")
	}
	if it.Err() == nil {
		t.Error("Err() should be set for a malformed record")
	}
}

func TestSplitPreviewImage(t *testing.T) {
	data := append([]byte("pat123"), 0xFF, 0xD8, 0xFF, 0xE0)
	id, jpeg, err := SplitPreviewImage(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("SplitPreviewImage() error = %v", err)
	}
	if id != "pat123" {
		t.Errorf("id = %q, want pat123", id)
	}
	rest, _ := io.ReadAll(jpeg)
	if len(rest) != 3 || rest[0] != 0xD8 {
		t.Errorf("jpeg = %v, want [d8 ff e0]", rest)
	}

	if _, _, err := SplitPreviewImage(strings.NewReader("no-terminator")); err == nil {
		t.Error("SplitPreviewImage() without terminator should fail")
	}
}

func TestRawExpanderCodec(t *testing.T) {
	cfg, err := RawExpanderCodec{}.Decode(strings.NewReader("\x01\x02"))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if string(cfg.Raw) != "\x01\x02" || cfg.Channels != nil {
		t.Errorf("config = %+v", cfg)
	}
}

func TestControls_MarshalKeepsOrder(t *testing.T) {
	controls := Controls{{Name: "zeta", Value: 0.25}, {Name: "alpha", Value: 1}}

	data, err := json.Marshal(controls)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"zeta":0.25,"alpha":1}` {
		t.Errorf("Marshal() = %s", data)
	}

	var back Controls
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(back) != 2 || back[0].Name != "zeta" || back[1].Value != 1 {
		t.Errorf("round trip = %+v", back)
	}

	empty, _ := json.Marshal(Controls(nil))
	if string(empty) != "{}" {
		t.Errorf("Marshal(nil) = %s, want {}", empty)
	}
}
