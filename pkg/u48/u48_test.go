package u48

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 255, 256, 1 << 20, Max - 1, Max}
	for _, x := range cases {
		v, err := TryFromU64(x)
		if err != nil {
			t.Fatalf("TryFromU64(%d): %v", x, err)
		}
		if got := v.ToU64(); got != x {
			t.Errorf("round trip %d: got %d", x, got)
		}
		if got := FromBytesLE(v.ToBytesLE()).ToU64(); got != x {
			t.Errorf("bytes round trip %d: got %d", x, got)
		}
	}
}

func TestTryFromU64Overflow(t *testing.T) {
	if _, err := TryFromU64(Max + 1); err == nil {
		t.Fatal("expected error for value exceeding 48 bits")
	}
}

func TestFromU64Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for value exceeding 48 bits")
		}
	}()
	FromU64(Max + 1)
}

func TestFromSliceZeroPads(t *testing.T) {
	v := FromSlice([]byte{0x01, 0x02, 0x03})
	if v.ToU64() != 0x030201 {
		t.Errorf("got %#v", v)
	}
}

func TestString(t *testing.T) {
	v := FromU64(0xabc)
	if got, want := v.String(), "0x000000000abc"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}
