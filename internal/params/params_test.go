package params

import (
	"net/url"
	"testing"
)

func TestParsePaginationDefaults(t *testing.T) {
	p := ParsePagination(url.Values{})

	if p.Limit != 20 || p.Page != 1 || p.Offset != 0 {
		t.Fatalf("defaults = %+v", p)
	}
}

func TestParsePaginationClampsLimit(t *testing.T) {
	p := ParsePagination(url.Values{"limit": {"500"}})
	if p.Limit != 100 {
		t.Fatalf("limit = %d, want clamped to 100", p.Limit)
	}

	p = ParsePagination(url.Values{"limit": {"-3"}})
	if p.Limit != 20 {
		t.Fatalf("limit = %d, want default for non-positive input", p.Limit)
	}
}

func TestParsePaginationOffset(t *testing.T) {
	p := ParsePagination(url.Values{"limit": {"10"}, "page": {"3"}})
	if p.Offset != 20 {
		t.Fatalf("offset = %d, want 20", p.Offset)
	}
}

func TestComputeMeta(t *testing.T) {
	p := ParsePagination(url.Values{"limit": {"10"}, "page": {"2"}})
	p.ComputeMeta(35)

	if p.TotalPages != 4 {
		t.Fatalf("total pages = %d, want 4", p.TotalPages)
	}
	if !p.HasNext || !p.HasPrev {
		t.Fatalf("has_next=%v has_prev=%v, want both true on page 2 of 4", p.HasNext, p.HasPrev)
	}
}
