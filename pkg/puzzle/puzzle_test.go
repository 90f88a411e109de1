package puzzle

import (
	"fmt"
	"testing"
)

func TestHash_KnownValues(t *testing.T) {
	tests := []struct {
		prev    string
		payload string
		nonce   uint64
		want    uint64
	}{
		// "0X0" = 0x30 0x58 0x30: (48*31+88)*31+48.
		{"0", "X", 0, 48904},
		{"", "", 0, 48},
		{"", "", 7, 55},
		{"", "a", 1, 97*31 + 49},
		{"0", "", 12, ((48*31)+49)*31 + 50},
	}
	for _, tt := range tests {
		got := Hash(tt.prev, tt.payload, tt.nonce)
		if got != tt.want {
			t.Errorf("Hash(%q, %q, %d) = %d, want %d", tt.prev, tt.payload, tt.nonce, got, tt.want)
		}
	}
}

func TestHash_Deterministic(t *testing.T) {
	a := Hash("1f3a", "block 7", 123456)
	b := Hash("1f3a", "block 7", 123456)
	if a != b {
		t.Fatalf("Hash not deterministic: %d vs %d", a, b)
	}
	if a == Hash("1f3a", "block 7", 123457) {
		t.Error("adjacent nonces should hash differently")
	}
}

func TestHash_Wraparound(t *testing.T) {
	// A long input overflows uint64 many times; the fold must still be
	// exactly h*31+byte mod 2^64.
	long := ""
	for i := 0; i < 200; i++ {
		long += "z"
	}
	var want uint64
	for i := 0; i < len(long); i++ {
		want = want*31 + uint64(long[i])
	}
	want = want*31 + '9'
	if got := Hash(long, "", 9); got != want {
		t.Fatalf("Hash(long) = %d, want %d", got, want)
	}
}

func TestMeetsDifficulty(t *testing.T) {
	tests := []struct {
		hash       uint64
		difficulty int
		want       bool
	}{
		{0x0, 1, true},
		{0x10, 1, true},
		{0xbf08, 1, false},
		{0x1, 1, false},
		{0xf, 1, false},
		{0xfff0, 1, true},
		{0x100, 2, true},
		{0x110, 2, false},
		{0xabc000, 3, true},
		{0xabc800, 3, false},
		{0x1_0000_0000, 8, true},
		{0x1_8000_0000, 8, false},
		{0xffffffff_00000000, 8, true},
		{0, 16, true},
		{1 << 63, 16, false},
		{0xdeadbeef, 0, true},
	}
	for _, tt := range tests {
		if got := MeetsDifficulty(tt.hash, tt.difficulty); got != tt.want {
			t.Errorf("MeetsDifficulty(%#x, %d) = %v, want %v", tt.hash, tt.difficulty, got, tt.want)
		}
	}
}

func TestMeetsDifficulty_KnownHash(t *testing.T) {
	h := Hash("0", "X", 0)
	if MeetsDifficulty(h, 1) {
		t.Fatalf("hash %#x should not meet difficulty 1", h)
	}
}

func TestValidDifficulty(t *testing.T) {
	for d := -1; d <= 10; d++ {
		want := d >= 1 && d <= 8
		if got := ValidDifficulty(d); got != want {
			t.Errorf("ValidDifficulty(%d) = %v, want %v", d, got, want)
		}
	}
}

func TestFormatHash(t *testing.T) {
	if got := FormatHash(48904); got != "bf08" {
		t.Errorf("FormatHash(48904) = %q, want %q", got, "bf08")
	}
	if got := FormatHash(0); got != "0" {
		t.Errorf("FormatHash(0) = %q, want %q", got, "0")
	}
	if got := FormatHash(^uint64(0)); got != "ffffffffffffffff" {
		t.Errorf("FormatHash(max) = %q", got)
	}
}

func TestHasher_MatchesHash(t *testing.T) {
	prevs := []string{"0", "bf08", "ffffffffffffffff", ""}
	payloads := []string{"", "block 0", "P2 ran for 10ms, block 14"}
	nonces := []uint64{0, 1, 9, 10, 99, 100, 65535, 1 << 40, ^uint64(0)}

	for _, p := range prevs {
		for _, d := range payloads {
			h := NewHasher(p, d)
			for _, n := range nonces {
				if got, want := h.Sum(n), Hash(p, d, n); got != want {
					t.Errorf("Hasher(%q,%q).Sum(%d) = %d, want %d", p, d, n, got, want)
				}
			}
		}
	}
}

func BenchmarkHasher_Sum(b *testing.B) {
	h := NewHasher("bf08", "block 1")
	for i := 0; i < b.N; i++ {
		_ = h.Sum(uint64(i))
	}
}

func ExampleHash() {
	h := Hash("0", "X", 0)
	fmt.Println(h, FormatHash(h), MeetsDifficulty(h, 1))
	// Output: 48904 bf08 false
}
