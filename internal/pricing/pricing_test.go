package pricing

import "testing"

func TestCost_KnownModel(t *testing.T) {
	cost := Cost("gpt-4o", 1000, 500, 0)
	if cost < 0.007 || cost > 0.008 {
		t.Fatalf("expected ~0.0075, got %f", cost)
	}
}

func TestCost_UnknownModel(t *testing.T) {
	if cost := Cost("model-that-does-not-exist", 1000, 500, 200); cost != 0.0 {
		t.Fatalf("expected 0.0 for unknown model, got %f", cost)
	}
}

func TestCost_CachedDiscount(t *testing.T) {
	// 1M cached input tokens on claude-sonnet-4-5 bill at the cached rate,
	// not the full input rate.
	full := Cost("claude-sonnet-4-5", 1_000_000, 0, 0)
	cached := Cost("claude-sonnet-4-5", 0, 0, 1_000_000)
	if cached >= full {
		t.Fatalf("cached rate %f should be below input rate %f", cached, full)
	}
	if cached != 0.30 {
		t.Fatalf("expected 0.30, got %f", cached)
	}
}

func TestKnown(t *testing.T) {
	if !Known("gemini-2.5-flash") {
		t.Fatal("expected gemini-2.5-flash to be known")
	}
	if Known("nope") {
		t.Fatal("expected nope to be unknown")
	}
}
