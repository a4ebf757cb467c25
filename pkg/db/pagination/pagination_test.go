package pagination

import (
	"strconv"
	"testing"
)

func TestLimitClamps(t *testing.T) {
	tests := []struct {
		size int
		want int
	}{
		{size: 0, want: 50},
		{size: -5, want: 50},
		{size: 1, want: 1},
		{size: 100, want: 100},
		{size: 250, want: 250},
		{size: 1000, want: 250},
	}
	for _, tc := range tests {
		if got := (Pagination{PageSize: tc.size}).Limit(); got != tc.want {
			t.Fatalf("size %d: expected %d, got %d", tc.size, tc.want, got)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "1234"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cursor, err := DecodeCursor(token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cursor.ID != "1234" {
		t.Fatalf("expected id 1234, got %q", cursor.ID)
	}

	if _, err := DecodeCursor("not-base64!!"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestBuildPageInfo(t *testing.T) {
	rows := []int{1, 2, 3, 4}

	trimmed, info := BuildPageInfo(rows, 3, func(v int) string { return strconv.Itoa(v) })
	if len(trimmed) != 3 {
		t.Fatalf("expected extra row trimmed, got %d rows", len(trimmed))
	}
	if !info.HasMore {
		t.Fatal("expected has_more")
	}
	if info.NextPageToken != "3" {
		t.Fatalf("expected cursor from last visible row, got %q", info.NextPageToken)
	}

	trimmed, info = BuildPageInfo(rows[:2], 3, func(v int) string { return strconv.Itoa(v) })
	if len(trimmed) != 2 || info.HasMore {
		t.Fatalf("expected final page, got %d rows has_more=%v", len(trimmed), info.HasMore)
	}

	_, info = BuildPageInfo(nil, 3, func(v int) string { return strconv.Itoa(v) })
	if info.HasMore || info.NextPageToken != "" {
		t.Fatalf("expected empty page info, got %+v", info)
	}
}
