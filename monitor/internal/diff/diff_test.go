package diff

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hazyhaar/pricewatch/extract"
)

func TestFocus_AdditionsThenRemovals(t *testing.T) {
	old := "Starter $9/month\nPro $29/month\nAbout us"
	new := "Starter $9/month\nPro $39/month\nEnterprise: contact sales\nAbout us"

	got := Focus{}.Diff(old, new)
	want := []string{
		"+ Pro $39/month",
		"+ Enterprise: contact sales",
		"- Pro $29/month",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff = %q, want %q", got, want)
	}
}

func TestFocus_Identical(t *testing.T) {
	text := "Pro $29/month\nTeam plan"
	got := Focus{}.Diff(text, text)
	if got == nil || len(got) != 0 {
		t.Fatalf("Diff(identical) = %#v, want empty non-nil", got)
	}
}

// WHAT: units that do not look like pricing never appear.
// WHY: the summary is a bounded email body, noise crowds out real changes.
func TestFocus_IgnoresNonFocusUnits(t *testing.T) {
	got := Focus{}.Diff("Welcome\nOur team", "Hello there\nOur people")
	if len(got) != 0 {
		t.Fatalf("Diff = %q, want empty", got)
	}
}

func TestFocus_SplitsOnWideWhitespace(t *testing.T) {
	old := "Basic €5    Premium €15"
	new := "Basic €5    Premium €20"
	got := Focus{}.Diff(old, new)
	want := []string{"+ Premium €20", "- Premium €15"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff = %q, want %q", got, want)
	}
}

func TestFocus_CaseInsensitive(t *testing.T) {
	got := Focus{}.Diff("", "ANNUAL BILLING\n20% OFF")
	want := []string{"+ ANNUAL BILLING", "+ 20% OFF"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff = %q, want %q", got, want)
	}
}

func TestFocus_Dedup(t *testing.T) {
	got := Focus{}.Diff("", "Pro plan\nPro plan\nPro plan")
	if len(got) != 1 || got[0] != "+ Pro plan" {
		t.Fatalf("Diff = %q, want a single addition", got)
	}
}

func TestFocus_Cap(t *testing.T) {
	var oldLines, newLines []string
	for i := range 20 {
		oldLines = append(oldLines, fmt.Sprintf("Plan %d old $%d", i, i))
		newLines = append(newLines, fmt.Sprintf("Plan %d new $%d", i, i+100))
	}
	got := Focus{}.Diff(strings.Join(oldLines, "\n"), strings.Join(newLines, "\n"))
	if len(got) != MaxChanges {
		t.Fatalf("len = %d, want %d", len(got), MaxChanges)
	}
	for _, l := range got {
		if !strings.HasPrefix(l, AddedPrefix) {
			t.Fatalf("additions must come first, got %q", l)
		}
	}

	got = Focus{MaxChanges: 3}.Diff("", strings.Join(newLines, "\n"))
	if len(got) != 3 {
		t.Fatalf("custom cap: len = %d, want 3", len(got))
	}
}

func TestFocus_StarterPriceChange(t *testing.T) {
	got := Focus{}.Diff("Starter $10/month", "Starter $12/month")
	want := []string{"+ Starter $12/month", "- Starter $10/month"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Diff = %q, want %q", got, want)
	}
}

// WHAT: long units are cut for display but compared in full.
// WHY: normalized text often has no line breaks, making the whole page one unit.
func TestFocus_ClipsLongUnits(t *testing.T) {
	long := "Pricing " + strings.Repeat("x", 500)
	got := Focus{}.Diff("", long)
	if len(got) != 1 {
		t.Fatalf("Diff = %q", got)
	}
	body := strings.TrimPrefix(got[0], AddedPrefix)
	if utf8.RuneCountInString(body) != MaxLineRunes+1 || !strings.HasSuffix(body, "…") {
		t.Fatalf("clipped unit has %d runes", utf8.RuneCountInString(body))
	}

	// Units sharing the first MaxLineRunes runes still show their difference.
	got = Focus{}.Diff(long+"a", long+"b")
	if len(got) != 2 {
		t.Fatalf("Diff = %q, want one addition and one removal", got)
	}
	if !strings.HasSuffix(got[0], "xb") || !strings.HasSuffix(got[1], "xa") {
		t.Fatalf("Diff = %q, want the excerpt to end at the differing rune", got)
	}
}

// WHAT: the excerpt of a long unit is centred on where it differs from its
// counterpart, with ellipses on both cut sides.
// WHY: a price in the middle of a page-sized unit must stay visible.
func TestFocus_ExcerptCentredOnChange(t *testing.T) {
	head := strings.Repeat("a", 400)
	tail := strings.Repeat("z", 400)
	got := Focus{}.Diff(head+" Pro $29/month "+tail, head+" Pro $39/month "+tail)
	if len(got) != 2 {
		t.Fatalf("Diff = %q", got)
	}
	add := strings.TrimPrefix(got[0], AddedPrefix)
	rem := strings.TrimPrefix(got[1], RemovedPrefix)
	if !strings.Contains(add, "Pro $39/month") || !strings.Contains(rem, "Pro $29/month") {
		t.Fatalf("excerpts hide the change: %q", got)
	}
	for _, e := range []string{add, rem} {
		if !strings.HasPrefix(e, "…") || !strings.HasSuffix(e, "…") {
			t.Fatalf("excerpt %q must be marked on both sides", e)
		}
		if n := utf8.RuneCountInString(e); n != MaxLineRunes+2 {
			t.Fatalf("excerpt has %d runes", n)
		}
	}
}

// WHAT: rendered HTML goes through the real normalizer before diffing, and a
// page longer than MaxLineRunes still yields distinguishable lines.
// WHY: normalized text has no line breaks, so the whole region is one unit.
func TestFocus_NormalizedPages(t *testing.T) {
	filler := strings.Repeat("Unlimited projects and members included. ", 12)
	page := func(price string) string {
		t.Helper()
		res, err := extract.Normalize(`<html><body><nav>Home Pricing</nav><main>
			<h1>Pricing</h1>
			<p>` + filler + `</p>
			<p>Pro ` + price + `/month</p>
		</main></body></html>`)
		if err != nil {
			t.Fatal(err)
		}
		return res.Text
	}
	old, new := page("$29"), page("$39")
	if utf8.RuneCountInString(new) <= MaxLineRunes {
		t.Fatalf("page too short for the test: %d runes", utf8.RuneCountInString(new))
	}
	if len(Units(new)) != 1 {
		t.Fatalf("Units = %d, want the whole region as one unit", len(Units(new)))
	}

	got := Focus{}.Diff(old, new)
	if len(got) != 2 {
		t.Fatalf("Diff = %q", got)
	}
	add := strings.TrimPrefix(got[0], AddedPrefix)
	rem := strings.TrimPrefix(got[1], RemovedPrefix)
	if add == rem {
		t.Fatalf("addition and removal read the same: %q", add)
	}
	if !strings.HasSuffix(add, "Pro $39/month") || !strings.HasSuffix(rem, "Pro $29/month") {
		t.Fatalf("Diff = %q, want the changed price visible", got)
	}
	if !strings.Contains(new, strings.TrimPrefix(add, "…")) || !strings.Contains(old, strings.TrimPrefix(rem, "…")) {
		t.Fatal("excerpts must come from their own unit")
	}

	// Short pages compare whole units.
	got = Focus{}.Diff(page("$29")[len(filler)+8:], page("$39")[len(filler)+8:])
	if len(got) != 2 || strings.Contains(got[0], "…") {
		t.Fatalf("Diff = %q", got)
	}
}

func TestUnits(t *testing.T) {
	got := Units("  a  \n\n b   c\td ")
	want := []string{"a", "b", "c\td"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Units = %q, want %q", got, want)
	}
}
