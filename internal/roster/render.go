package roster

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder rendered for an empty confirmed or waitlist section.
const emptySection = "None"

const (
	defaultTitle  = "THM Volleyball Roster"
	defaultFooter = "📍 KMCD Gym | 2-5 PM  \n🚪 Enter through the double doors (north side)  \n📝 Please arrive on time — late spots may be given to waitlisters."
)

// Renderer turns a snapshot into the roster message text.
//
// Render is a pure function of its inputs and the fixed Title/Footer: equal
// inputs always produce byte-identical output. The reconciler relies on that
// for change detection, so nothing here may read the clock or do I/O.
type Renderer struct {
	Title  string
	Footer string
}

func NewRenderer(title, footer string) *Renderer {
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	if footer == "" {
		footer = defaultFooter
	}
	return &Renderer{Title: title, Footer: footer}
}

func (r *Renderer) Render(snap Snapshot, cancel Cancellation, sunday time.Time) string {
	var b strings.Builder

	if cancel.Cancelled {
		reason := strings.TrimSpace(cancel.Reason)
		if reason == "" {
			reason = "No reason provided"
		}
		fmt.Fprintf(&b, "🚫 Sunday volleyball is CANCELLED - %s\nReason: %s\n\n",
			sunday.Format("January 02, 2006"), reason)
	}

	fmt.Fprintf(&b, "📋 **%s - Sunday, %s**\n\n✅ Confirmed to Play:", r.Title, sunday.Format("January 02"))
	if len(snap.Confirmed) == 0 {
		b.WriteString("\n" + emptySection)
	} else {
		for i, name := range snap.Confirmed {
			fmt.Fprintf(&b, "\n%d. %s", i+1, name)
		}
	}

	b.WriteString("\n\n⏳ Waitlist:")
	if len(snap.Waitlist) == 0 {
		b.WriteString("\n" + emptySection)
	} else {
		for _, name := range snap.Waitlist {
			fmt.Fprintf(&b, "\n- %s", name)
		}
	}

	b.WriteString("\n\n")
	b.WriteString(r.Footer)
	return b.String()
}

// Matches reports whether text looks like a roster message produced by this
// renderer, covering both the normal and the cancelled-banner variant. Used
// by restart recovery to recognize an earlier posting in channel history.
func (r *Renderer) Matches(text string) bool {
	if strings.HasPrefix(text, "📋 **"+r.Title) {
		return true
	}
	return strings.HasPrefix(text, "🚫 ") && strings.Contains(text, "📋 **"+r.Title)
}
